package consolidation

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
	"github.com/ehr/psnormalizer/internal/platform/fhir"
)

// HandlerOptions are the request defaults taken from configuration.
type HandlerOptions struct {
	DateStyle       clinicaldate.Style
	DefaultCountry  string
	MaxDocumentSize string
}

type Handler struct {
	svc  *Service
	opts HandlerOptions
}

func NewHandler(svc *Service, opts HandlerOptions) *Handler {
	return &Handler{svc: svc, opts: opts}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/documents/normalize", h.Normalize)
}

// Normalize accepts a raw CDA or FHIR document as the request body.
//
// Query parameters: format (cda|fhir|auto, else derived from Content-Type),
// country (ISO alpha-2), style (european|us) and view (full|summary).
func (h *Handler) Normalize(c echo.Context) error {
	format, err := h.format(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("format", err.Error()))
	}

	view := strings.ToLower(c.QueryParam("view"))
	if view != "" && view != "full" && view != "summary" {
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("view", `must be "full" or "summary"`))
	}

	country := strings.ToUpper(strings.TrimSpace(c.QueryParam("country")))
	if country == "" {
		country = h.opts.DefaultCountry
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return c.JSON(http.StatusRequestEntityTooLarge, fhir.TooLargeOutcome(h.opts.MaxDocumentSize))
		}
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("body", err.Error()))
	}

	ds, err := h.svc.Process(body, format, country)
	if err != nil {
		if canonical.IsFatal(err) {
			return c.JSON(http.StatusBadRequest, fhir.FatalOutcome(err))
		}
		return c.JSON(http.StatusInternalServerError, fhir.InternalErrorOutcome(err.Error()))
	}

	if view == "summary" {
		style := h.opts.DateStyle
		if s := c.QueryParam("style"); s != "" {
			style = clinicaldate.ParseStyle(s)
		}
		return c.JSON(http.StatusOK, Summarize(ds, style))
	}
	return c.JSON(http.StatusOK, ds)
}

// format reads the format query parameter, falling back to the request
// Content-Type and then to sniffing.
func (h *Handler) format(c echo.Context) (canonical.SourceFormat, error) {
	if q := c.QueryParam("format"); q != "" {
		return canonical.ParseSourceFormat(q)
	}
	mt, _, err := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if err != nil {
		return canonical.FormatAuto, nil
	}
	switch mt {
	case "application/xml", "text/xml", "application/hl7-cda+xml":
		return canonical.FormatCDA, nil
	case "application/fhir+json":
		return canonical.FormatFHIR, nil
	}
	return canonical.FormatAuto, nil
}

// Health reports liveness.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
