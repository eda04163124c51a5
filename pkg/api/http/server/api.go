package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voidshard/flashd/pkg/api"
	"github.com/voidshard/flashd/pkg/api/http/common"
	"github.com/voidshard/flashd/pkg/structs"
)

type Server struct {
	opts       *api.Options
	log        *zap.Logger
	svc        api.API
	exit       chan os.Signal
	httpserver *http.Server
}

// ServeForever serves the API until Close is called or the process is interrupted.
func (s *Server) ServeForever(svc api.API) error {
	s.httpserver = &http.Server{
		Handler:      s.Handler(svc),
		Addr:         s.opts.Addr,
		WriteTimeout: s.opts.WriteTimeout,
		ReadTimeout:  s.opts.ReadTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.httpserver.Addr))
		err := s.httpserver.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	signal.Notify(s.exit, os.Interrupt)
	defer signal.Stop(s.exit)

	select {
	case err := <-errs:
		return err
	case <-s.exit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownWait)
	defer cancel()
	return s.httpserver.Shutdown(ctx)
}

// Handler returns the routes of the API
func (s *Server) Handler(svc api.API) http.Handler {
	s.svc = svc

	router := mux.NewRouter()
	router.HandleFunc(common.API_HEALTH, s.Health).Methods(http.MethodGet)
	router.Handle(common.API_METRICS, promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc(common.API_JOBS, s.Jobs).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc(common.API_JOB, s.Job).Methods(http.MethodGet, http.MethodDelete)
	router.HandleFunc(common.API_JOB_SCHEDULE, s.Reschedule).Methods(http.MethodPatch)
	router.HandleFunc(common.API_BATCHES, s.Batches).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc(common.API_BATCH_JOBS, s.BatchJobs).Methods(http.MethodGet, http.MethodPost)

	if s.opts.Static != "" {
		s.log.Info("serving static files", zap.String("path", s.opts.Static))
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.opts.Static)))
	}

	if s.opts.Debug {
		router.Use(loggingMiddleware(s.log))
	}

	return router
}

func (s *Server) Jobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getJobs(w, r)
	case http.MethodPost:
		s.createJob(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	cjr := &structs.CreateJobRequest{}
	err := unmarshalJson(w, r, cjr)
	if err != nil {
		return
	}

	job, err := s.svc.CreateJob(cjr)
	if err != nil {
		http.Error(w, err.Error(), mapError(err))
		return
	}
	writeJson(w, job)
}

func (s *Server) getJobs(w http.ResponseWriter, r *http.Request) {
	q := &structs.Query{}
	err := unmarshalQuery(w, r, q)
	if err != nil {
		return
	}

	items, err := s.svc.Jobs(q)
	if err != nil {
		http.Error(w, err.Error(), mapError(err))
		return
	}
	s.log.Debug("listed jobs", zap.String("url", r.URL.String()), zap.Int("count", len(items)))
	writeJson(w, items)
}

func (s *Server) Job(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(w, r)
	if err != nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := s.svc.Job(id)
		if err != nil {
			http.Error(w, err.Error(), mapError(err))
			return
		}
		writeJson(w, job)
	case http.MethodDelete:
		err := s.svc.DeleteJob(id)
		if err != nil {
			http.Error(w, err.Error(), mapError(err))
			return
		}
		writeJson(w, &common.UpdateResponse{Updated: 1})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(w, r)
	if err != nil {
		return
	}
	req := &structs.RescheduleRequest{}
	err = unmarshalJson(w, r, req)
	if err != nil {
		return
	}

	job, err := s.svc.Reschedule(id, req)
	if err != nil {
		http.Error(w, err.Error(), mapError(err))
		return
	}
	writeJson(w, job)
}

func (s *Server) Batches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := &structs.Query{}
		err := unmarshalQuery(w, r, q)
		if err != nil {
			return
		}
		items, err := s.svc.Batches(q)
		if err != nil {
			http.Error(w, err.Error(), mapError(err))
			return
		}
		writeJson(w, items)
	case http.MethodPost:
		req := &structs.CreateBatchRequest{}
		err := unmarshalJson(w, r, req)
		if err != nil {
			return
		}
		batch, err := s.svc.CreateBatch(req)
		if err != nil {
			http.Error(w, err.Error(), mapError(err))
			return
		}
		writeJson(w, batch)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) BatchJobs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(w, r)
	if err != nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		items, err := s.svc.BatchJobs(id)
		if err != nil {
			http.Error(w, err.Error(), mapError(err))
			return
		}
		writeJson(w, items)
	case http.MethodPost:
		req := &structs.AddToBatchRequest{}
		err := unmarshalJson(w, r, req)
		if err != nil {
			return
		}
		added, err := s.svc.AddToBatch(id, req)
		if err != nil {
			http.Error(w, err.Error(), mapError(err))
			return
		}
		writeJson(w, &common.UpdateResponse{Updated: added})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) Close() error {
	s.exit <- os.Interrupt
	return nil
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func NewServer(opts *api.Options, log *zap.Logger) *Server {
	if opts == nil {
		opts = &api.Options{}
	}
	opts.SetDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		opts: opts,
		log:  log,
		exit: make(chan os.Signal, 1),
	}
}
