// Package demo is a small HTTP service used to exercise the client end to end:
// a greeting endpoint and a bearer-gated JSON echo.
package demo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/google/uuid"
)

// DefaultToken is the bearer token accepted by POST /create unless overridden.
const DefaultToken = "123"

// CreateRequest is the body of POST /create.
type CreateRequest struct {
	Name string `json:"name" validate:"required,max=256"`
}

// Reply is the JSON answer of POST /create. Code is zero on success.
type Reply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Service serves the demo routes.
type Service struct {
	log        *slog.Logger
	validate   *validator.Validate
	translator ut.Translator
	token      string
}

// New creates a Service accepting token on POST /create.
func New(token string, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}

	validate := validator.New()
	translator, ok := ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		return nil, errors.New("demo: 'en' translator unavailable")
	}
	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		return nil, err
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Service{log: log, validate: validate, translator: translator, token: token}, nil
}

// Handler returns the routed, logged handler.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /hello/{name}", s.hello)
	mux.HandleFunc("POST /create", s.create)
	return s.logged(mux)
}

func (s *Service) hello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("hello-" + r.PathValue("name")))
}

// create checks the bearer token before touching the body.
func (s *Service) create(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+s.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.reply(w, http.StatusBadRequest, Reply{Code: http.StatusBadRequest, Message: "malformed JSON body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.reply(w, http.StatusBadRequest, Reply{Code: http.StatusBadRequest, Message: s.describe(err)})
		return
	}

	s.reply(w, http.StatusOK, Reply{Code: 0, Message: req.Name})
}

func (s *Service) describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fe.Translate(s.translator)
	}
	return strings.Join(parts, "; ")
}

func (s *Service) reply(w http.ResponseWriter, status int, body Reply) {
	data, err := json.Marshal(body)
	if err != nil {
		s.log.Error("demo: encoding reply", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.log.Error("demo: writing reply", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Service) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		s.log.Info("request started", "id", id, "method", r.Method, "path", r.URL.Path, "remoteaddr", r.RemoteAddr)
		next.ServeHTTP(rec, r)
		s.log.Info("request completed", "id", id, "method", r.Method, "path", r.URL.Path,
			"statusCode", rec.status, "since", time.Since(start).String())
	})
}
