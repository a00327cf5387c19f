package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"sharelink/internal/server/database"
	"sharelink/internal/server/service"
)

// Pinger reports whether the link repository is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains the HTTP handlers for the sharelink API.
type Handler struct {
	links     *service.LinkService
	access    *service.AccessEngine
	previewer *service.Previewer
	users     *service.UserService
	health    Pinger
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(
	links *service.LinkService,
	access *service.AccessEngine,
	previewer *service.Previewer,
	users *service.UserService,
	health Pinger,
) *Handler {
	return &Handler{
		links:     links,
		access:    access,
		previewer: previewer,
		users:     users,
		health:    health,
	}
}

// HandleIndex handles GET /.
func (h *Handler) HandleIndex(c echo.Context) error {
	return c.String(http.StatusOK, "sharelink server is running")
}

type upsertUserRequest struct {
	ID       string `json:"id"`
	LegacyID string `json:"_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Photo    string `json:"photo"`
}

// HandleUpsertUser handles POST /users.
// Creates the user unless one with the same email already exists.
func (h *Handler) HandleUpsertUser(c echo.Context) error {
	var req upsertUserRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid JSON body"})
	}

	id := req.ID
	if id == "" {
		id = req.LegacyID
	}

	created, err := h.users.UpsertIfAbsent(c.Request().Context(), service.UpsertUserInput{
		ID:    id,
		Email: req.Email,
		Name:  req.Name,
		Photo: req.Photo,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	if !created {
		return c.JSON(http.StatusOK, echo.Map{"message": "User already exists"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "User created"})
}

// HandleListLinks handles GET /links.
// Lists every link, or only those owned by the "email" query param.
func (h *Handler) HandleListLinks(c echo.Context) error {
	links, err := h.links.List(c.Request().Context(), c.QueryParam("email"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, links)
}

// HandleCreateLink handles POST /links.
// Accepts a multipart form with a "file" field plus the link metadata fields.
func (h *Handler) HandleCreateLink(c echo.Context) error {
	in := service.CreateLinkInput{
		OwnerID:    c.FormValue("userId"),
		OwnerEmail: c.FormValue("userEmail"),
		Title:      c.FormValue("title"),
		Visibility: c.FormValue("visibility"),
		Password:   c.FormValue("password"),
		Expiration: c.FormValue("expiration"),
	}

	// A missing file is left for the service to report alongside any other
	// validation failure.
	if fileHeader, err := c.FormFile("file"); err == nil {
		src, err := fileHeader.Open()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{
				"error": "failed to read uploaded file",
			})
		}
		defer src.Close()

		in.Content = src
		in.Size = fileHeader.Size
		in.FileName = fileHeader.Filename
		in.ContentType = fileHeader.Header.Get(echo.HeaderContentType)
	}

	result, err := h.links.Create(c.Request().Context(), in)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// HandleViewLink handles GET /links/:id.
// Renders the preview page when access is allowed. Accepts an optional
// "password" query param; an empty value still counts as supplied.
func (h *Handler) HandleViewLink(c echo.Context) error {
	id := c.Param("id")

	var supplied *string
	if values, ok := c.QueryParams()["password"]; ok && len(values) > 0 {
		supplied = &values[0]
	}

	link, decision, err := h.access.Authorize(c.Request().Context(), id, supplied)
	if err != nil {
		slog.Error("failed to authorize view", "id", id, "error", err)
		return c.Render(http.StatusInternalServerError, "message.html", messagePage{
			Heading: "Something went wrong",
			Body:    "The link could not be loaded. Please try again later.",
		})
	}

	switch err := decision.Err(); {
	case errors.Is(err, service.ErrNotFound):
		return c.Render(http.StatusNotFound, "message.html", messagePage{
			Heading: "Link not found",
			Body:    "This link does not exist or has been deleted.",
		})
	case errors.Is(err, service.ErrExpired):
		return c.Render(http.StatusGone, "message.html", messagePage{
			Heading: "Link expired",
			Body:    "This link has expired and is no longer available.",
		})
	case errors.Is(err, service.ErrDenied):
		return c.Render(http.StatusForbidden, "denied.html", deniedPage{
			ID:        id,
			Title:     link.Title,
			Attempted: supplied != nil,
		})
	}

	return c.Render(http.StatusOK, "view.html", h.previewer.Build(c.Request().Context(), link))
}

// patchFields lists the only body fields an update may touch.
var patchFields = []string{"title", "visibility", "password", "expiration"}

// HandleUpdateLink handles PUT /links/:id.
// Applies a JSON patch restricted to the allow-listed metadata fields.
func (h *Handler) HandleUpdateLink(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid link id"})
	}

	patch, err := decodePatch(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	if err := h.links.Update(c.Request().Context(), id, patch); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Link updated"})
}

// decodePatch reads the allow-listed fields from a JSON object. Other fields
// are ignored. A JSON null is read as an empty string, which clears the
// password or expiration.
func decodePatch(body io.Reader) (service.Patch, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return service.Patch{}, errors.New("invalid JSON body")
	}

	values := make(map[string]*string, len(patchFields))
	for _, field := range patchFields {
		msg, ok := raw[field]
		if !ok {
			continue
		}
		var v *string
		if err := json.Unmarshal(msg, &v); err != nil {
			return service.Patch{}, fmt.Errorf("%s must be a string", field)
		}
		if v == nil {
			v = new(string)
		}
		values[field] = v
	}

	return service.Patch{
		Title:      values["title"],
		Visibility: values["visibility"],
		Password:   values["password"],
		Expiration: values["expiration"],
	}, nil
}

// HandleDeleteLink handles DELETE /links/:id.
// Removes the stored file and then the link record.
func (h *Handler) HandleDeleteLink(c echo.Context) error {
	if err := h.links.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Link deleted"})
}

// HandleAnalytics handles GET /analytics/:id.
func (h *Handler) HandleAnalytics(c echo.Context) error {
	count, err := h.links.AccessCount(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"accessCount": count})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including repository connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.health.Ping(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /api/stats.
// Returns aggregate server statistics.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.links.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, statsResponse(stats))
}

func statsResponse(stats *database.Stats) echo.Map {
	return echo.Map{
		"total_links":        stats.TotalLinks,
		"active_links":       stats.ActiveLinks,
		"total_views":        stats.TotalViews,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanize.IBytes(uint64(stats.StorageUsed)),
	}
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": "),
		})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Link not found"})
	case errors.Is(err, service.ErrNoChanges):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Link not found or no changes made"})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	default:
		slog.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
