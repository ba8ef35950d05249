package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"pokertable/gateway"
	"pokertable/registry"
	"pokertable/store"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "server",
	})

	st, err := store.NewFromEnv()
	if err != nil {
		logger.Fatal("failed to open store", "err", err)
	}
	defer st.Close()

	reg := registry.New(quartz.NewReal(), st, logger.WithPrefix("registry"))

	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 30*time.Second)
	if err := reg.Restore(restoreCtx, st); err != nil {
		logger.Fatal("failed to restore tables", "err", err)
	}
	cancelRestore()

	gw := gateway.New(reg, logger.WithPrefix("gateway"))

	mux := http.NewServeMux()
	mux.HandleFunc("/tables", gw.CreateTableHTTP)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseUint(r.URL.Query().Get("userId"), 10, 64)
		if err != nil {
			http.Error(w, "userId query parameter is required", http.StatusBadRequest)
			return
		}
		gw.HandleWebSocket(userID, w, r)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server stopped", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := reg.Shutdown(ctx, "server shutting down"); err != nil {
		logger.Error("error closing tables", "err", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("error shutting down http server", "err", err)
	}
}
