package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/angelmondragon/dashbite-backend/pkg/logger"
	"github.com/pressly/goose/v3"
)

// gooseLogger routes goose's package output through the structured logger.
type gooseLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.logg.Info(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	g.logg.Error(g.ctx, "goose fatal", errors.New(msg))
	os.Exit(1)
}

// SetLogger sends goose output to logg with the fields carried by ctx. goose
// keeps a single package-level logger, so the last call wins.
func SetLogger(ctx context.Context, logg *logger.Logger) {
	if logg == nil {
		logg = logger.Nop()
	}
	goose.SetLogger(gooseLogger{ctx: ctx, logg: logg})
}
