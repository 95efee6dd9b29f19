package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"document-submitter/logging"

	jsoniter "github.com/json-iterator/go"
)

// Endpoint fake de criação de documentos, para rodar o submitter localmente.
//
//	LISTEN_ADDR  endereço (padrão :8081)
//	DELAY        atraso por requisição, simula envios lentos (ex: 500ms)
//	FAIL_EVERY   responde 500 a cada N requisições (0 desliga)
func main() {
	logger := logging.New("text", logging.ParseLevel(os.Getenv("LOG_LEVEL")))

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	delay, _ := time.ParseDuration(os.Getenv("DELAY"))
	failEvery, _ := strconv.Atoi(os.Getenv("FAIL_EVERY"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var seq, inFlight atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/lk/documents/create", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		n := seq.Add(1)
		active := inFlight.Add(1)
		defer inFlight.Add(-1)

		var body struct {
			DocumentFormat  string `json:"document_format"`
			ProductDocument string `json:"product_document"`
			ProductGroup    string `json:"product_group"`
			Signature       string `json:"signature"`
			Type            string `json:"type"`
		}
		if err := jsoniter.NewDecoder(io.LimitReader(r.Body, 10<<20)).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		logger.Info("document received", "seq", n, "in_flight", active, "type", body.Type, "group", body.ProductGroup)

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if failEvery > 0 && n%int64(failEvery) == 0 {
			http.Error(w, "simulated failure", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":"` + strconv.FormatInt(n, 10) + `"}`))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example endpoint listening", "addr", addr, "delay", delay, "fail_every", failEvery)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
