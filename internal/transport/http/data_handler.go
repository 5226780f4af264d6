package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"tabtweak/internal/dataprocessing"
	apierrors "tabtweak/internal/errors"
	"tabtweak/internal/infrastructure"
	"tabtweak/internal/middleware"
	"tabtweak/internal/services"
	"tabtweak/pkg/contracts/domain"
)

// DefaultPreviewRows is the number of rows a tweak preview returns
const DefaultPreviewRows = 20

// DataHandler serves dataset listing, tweaking and analysis
type DataHandler struct {
	service      DataServiceInterface
	validation   *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// TweakResponse is a tweaked dataset preview
type TweakResponse struct {
	Dataset string               `json:"dataset"`
	Rows    int                  `json:"rows"`
	Cached  bool                 `json:"cached"`
	Schema  []domain.TableSchema `json:"schema"`
	Preview *domain.Table        `json:"preview"`
}

// NewDataHandler creates a new data handler
func NewDataHandler(service DataServiceInterface, validation *middleware.ValidationMiddleware, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *DataHandler {
	return &DataHandler{
		service:      service,
		validation:   validation,
		query:        middleware.NewQueryParamValidator(errorHandler),
		errorHandler: errorHandler,
		logger:       infrastructure.WithComponent(logger, "data_handler"),
	}
}

// Routes returns the dataset routes
func (h *DataHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.ListDatasets)
	r.Get("/files", h.ListInputFiles)

	r.Route("/{name}", func(r chi.Router) {
		r.Use(h.DatasetCtx)
		r.Get("/", h.GetDataset)
		r.Get("/tweak", h.Tweak)
		r.Post("/tweak", h.Retweak)
		r.Get("/describe", h.Describe)
		r.Get("/corr", h.Corr)
		r.With(h.validation.LimitBody).Post("/pivot", h.Pivot)
		r.With(h.validation.LimitBody).Post("/resample", h.Resample)
	})
	return r
}

// DatasetCtx rejects malformed dataset names before they reach the service
func (h *DataHandler) DatasetCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name := chi.URLParam(r, "name"); !middleware.ValidDatasetName(name) {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("name", "invalid dataset name"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleError maps an undefined dataset onto its API error before the shared
// problem details handler renders it
func (h *DataHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, dataprocessing.ErrUnknownDataset) {
		err = apierrors.ErrDatasetNotFound.With(err.Error(), chi.URLParam(r, "name"))
	}
	h.errorHandler.HandleError(w, r, err)
}

// ListDatasets handles GET /api/datasets
func (h *DataHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets := h.service.Datasets(r.Context())
	render.JSON(w, r, map[string]interface{}{
		"datasets": datasets,
		"count":    len(datasets),
	})
}

// ListInputFiles handles GET /api/datasets/files
func (h *DataHandler) ListInputFiles(w http.ResponseWriter, r *http.Request) {
	found, err := h.service.InputFiles(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"files": found,
		"count": len(found),
	})
}

// GetDataset handles GET /api/datasets/{name}
func (h *DataHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	spec, err := h.service.Dataset(chi.URLParam(r, "name"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, spec)
}

// Tweak handles GET /api/datasets/{name}/tweak and returns a preview of
// the tweaked table
func (h *DataHandler) Tweak(w http.ResponseWriter, r *http.Request) {
	h.tweak(w, r, false)
}

// Retweak handles POST /api/datasets/{name}/tweak. The cached table is
// dropped and the dataset is read again.
func (h *DataHandler) Retweak(w http.ResponseWriter, r *http.Request) {
	h.tweak(w, r, true)
}

func (h *DataHandler) tweak(w http.ResponseWriter, r *http.Request, fresh bool) {
	name := chi.URLParam(r, "name")
	limit, ok := h.query.ValidateInt(w, r, "limit", 0, 1000, DefaultPreviewRows)
	if !ok {
		return
	}
	if fresh {
		h.service.Invalidate(name)
	}

	t, cached, err := h.service.Tweaked(r.Context(), name)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "dataset tweak served",
		slog.String("dataset", name),
		slog.Bool("cached", cached),
		slog.Int("rows", t.Rows()))

	render.JSON(w, r, TweakResponse{
		Dataset: name,
		Rows:    t.Rows(),
		Cached:  cached,
		Schema:  t.Schema(),
		Preview: t.Head(limit),
	})
}

// Describe handles GET /api/datasets/{name}/describe
func (h *DataHandler) Describe(w http.ResponseWriter, r *http.Request) {
	desc, err := h.service.Describe(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, desc)
}

// Corr handles GET /api/datasets/{name}/corr?x=a&y=b
func (h *DataHandler) Corr(w http.ResponseWriter, r *http.Request) {
	x, y := r.URL.Query().Get("x"), r.URL.Query().Get("y")
	if x == "" || y == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("x", "x and y column names are required"))
		return
	}

	c, err := h.service.Corr(r.Context(), chi.URLParam(r, "name"), x, y)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, c)
}

// Pivot handles POST /api/datasets/{name}/pivot
func (h *DataHandler) Pivot(w http.ResponseWriter, r *http.Request) {
	var req services.PivotRequest
	if err := h.validation.Decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	t, err := h.service.Pivot(r.Context(), chi.URLParam(r, "name"), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, t)
}

// Resample handles POST /api/datasets/{name}/resample
func (h *DataHandler) Resample(w http.ResponseWriter, r *http.Request) {
	var req services.ResampleRequest
	if err := h.validation.Decode(r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	t, err := h.service.Resample(r.Context(), chi.URLParam(r, "name"), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, t)
}
