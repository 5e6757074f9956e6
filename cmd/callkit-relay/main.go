// callkit-relay is the websocket signaling relay for call clients.
//
// Clients connect to /ws?client_id=<id> and exchange call signaling
// envelopes. The relay assigns session ids, turns call_initiate into
// incoming_call for the callee, and routes everything else between the two
// parties of each session.
//
// Configuration is read from settings.toml in the working directory (or
// the file named by -config), with flags taking precedence:
//
//	-config  path to settings.toml (default: working directory)
//	-addr    listen address (default: ":8089")
//	-level   log level: trace|debug|info|warn|error (default: "info")
//
// Example:
//
//	callkit-relay -addr :8089 -level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/spf13/viper"

	"github.com/hitch-mobility/callkit/pkg/logutil"
	"github.com/hitch-mobility/callkit/pkg/signaling"
)

func main() {
	configPath := flag.String("config", "", "path to settings.toml (default: working directory)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	level := flag.String("level", "", "log level (overrides config)")
	flag.Parse()

	v := viper.New()
	v.SetConfigName("settings")
	v.SetConfigType("toml")
	if *configPath != "" {
		v.SetConfigFile(*configPath)
	} else {
		v.AddConfigPath(".")
	}
	v.SetDefault("listen_addr", ":8089")
	v.SetDefault("log_level", "info")
	v.SetDefault("send_timeout", "5s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "read config: %v\n", err)
			os.Exit(1)
		}
		// No config file: defaults and flags carry it.
	}
	if *addr != "" {
		v.Set("listen_addr", *addr)
	}
	if *level != "" {
		v.Set("log_level", *level)
	}

	loggerFactory := logutil.NewConsoleFactory(os.Stderr, v.GetString("log_level"))
	log := loggerFactory.NewLogger("main")

	relay := signaling.NewRelay(signaling.RelayConfig{
		SendTimeout:   v.GetDuration("send_timeout"),
		LoggerFactory: loggerFactory,
	})

	upgrader := websocket.Upgrader{
		// The relay serves mobile clients, not browsers; any origin may
		// connect.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok clients=%d\n", len(relay.Clients()))
	})
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		clientID := req.URL.Query().Get(signaling.ClientIDParam)
		if clientID == "" {
			http.Error(w, "missing "+signaling.ClientIDParam, http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Warnf("upgrade failed client=%s: %v", clientID, err)
			return
		}

		t := signaling.AcceptWebSocket(conn, loggerFactory)
		relay.Attach(clientID, t)

		// The connection is hijacked; this goroutine just waits for it
		// to die and cleans up.
		<-t.Done()
		relay.Detach(clientID)
		_ = t.Close()
	})

	server := &http.Server{
		Addr:              v.GetString("listen_addr"),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("relay listening addr=%s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Infof("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "serve: %v\n", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("shutdown: %v", err)
	}
	relay.Close()
}
