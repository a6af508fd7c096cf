package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fulldump/box"
	"go.uber.org/zap"

	"github.com/fulldump/dbcextract/api"
	"github.com/fulldump/dbcextract/configuration"
	"github.com/fulldump/dbcextract/database"
	"github.com/fulldump/dbcextract/service"
)

var VERSION = "dev"

func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newDatabase(c *configuration.Configuration, logger *zap.Logger) *database.Database {
	return database.NewDatabase(&database.Config{
		Dir:     c.Dir,
		Hotfix:  c.Hotfix,
		Schemas: c.Schemas,
		Raw:     c.Raw,
		Logger:  logger,
	})
}

// Bootstrap prepares the browse API over c.Dir. start blocks until stop is
// called or the process receives SIGTERM or SIGINT.
func Bootstrap(c *configuration.Configuration, logger *zap.Logger) (start, stop func(), err error) {

	db := newDatabase(c, logger)

	b := api.Build(service.NewService(db), VERSION, c.ApiKey, c.ApiSecret, c.EnableCompression)
	b.WithInterceptors(
		api.AccessLog(logger.Named("access")),
		api.InterceptorUnavailable(db),
		api.RecoverFromPanic,
		api.PrettyErrorInterceptor,
	)

	s := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("listening", zap.String("addr", ln.Addr().String()))

	stopOnce := sync.Once{}
	stop = func() {
		stopOnce.Do(func() {
			err := db.Stop()
			if err != nil {
				logger.Error("stop database", zap.Error(err))
			}
			s.Shutdown(context.Background())
		})
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		logger.Info("signal received", zap.String("signal", sig.String()))
		stop()
	}()

	start = func() {

		wg := &sync.WaitGroup{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Start()
			if err != nil {
				logger.Error("database", zap.Error(err))
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Serve(ln)
			if err != nil && err != http.ErrServerClosed {
				logger.Error("serve", zap.Error(err))
			}
		}()

		wg.Wait()
	}

	return start, stop, nil
}
