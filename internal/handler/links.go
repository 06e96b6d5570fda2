package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/abdusco/qrlink/internal"
	"github.com/abdusco/qrlink/internal/auth"
	"github.com/abdusco/qrlink/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type LinkHandler struct {
	provisioner *service.Provisioner
	links       *service.Links
	resolver    *service.Resolver
}

func NewLinkHandler(provisioner *service.Provisioner, links *service.Links, resolver *service.Resolver) *LinkHandler {
	return &LinkHandler{
		provisioner: provisioner,
		links:       links,
		resolver:    resolver,
	}
}

type DestinationRequest struct {
	DestinationURL string `json:"destinationUrl" validate:"required,url"`
}

type ListLinksRequest struct {
	Page  int `query:"page"`
	Limit int `query:"limit"`
}

type LinkResponse struct {
	ID             string     `json:"id"`
	ShortCode      string     `json:"shortCode"`
	ShortURL       string     `json:"shortUrl"`
	DestinationURL string     `json:"destinationUrl"`
	QRImageURL     string     `json:"qrImageUrl"`
	Scans          int64      `json:"scans"`
	LastScannedAt  *time.Time `json:"lastScannedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

type LinkEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    LinkResponse `json:"data"`
}

type ListLinksEnvelope struct {
	Success    bool           `json:"success"`
	Data       []LinkResponse `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

func toLinkResponse(link *internal.Link) LinkResponse {
	return LinkResponse{
		ID:             link.ID,
		ShortCode:      link.ShortCode,
		ShortURL:       link.ShortURL,
		DestinationURL: link.DestinationURL,
		QRImageURL:     link.QRImageURL,
		Scans:          link.Scans,
		LastScannedAt:  link.LastScannedAt,
		CreatedAt:      link.CreatedAt,
		UpdatedAt:      link.UpdatedAt,
	}
}

// bindDestination binds and validates the request body, reporting the first
// failing rule the way clients expect.
func bindDestination(c echo.Context) (DestinationRequest, error) {
	var req DestinationRequest
	if err := c.Bind(&req); err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "invalid request body").WithInternal(err)
	}

	if err := c.Validate(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "required" {
			return req, echo.NewHTTPError(http.StatusBadRequest, "destinationUrl is required")
		}
		return req, internal.ErrInvalidURL
	}

	return req, nil
}

func (h *LinkHandler) CreateLink(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := bindDestination(c)
	if err != nil {
		return err
	}

	link, err := h.provisioner.Provision(ctx, auth.PrincipalFrom(c), req.DestinationURL)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, LinkEnvelope{Success: true, Data: toLinkResponse(link)})
}

func (h *LinkHandler) GetLink(c echo.Context) error {
	ctx := c.Request().Context()

	link, err := h.links.Get(ctx, auth.PrincipalFrom(c), c.Param("code"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, LinkEnvelope{Success: true, Data: toLinkResponse(link)})
}

func (h *LinkHandler) UpdateLink(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := bindDestination(c)
	if err != nil {
		return err
	}

	link, err := h.links.UpdateDestination(ctx, auth.PrincipalFrom(c), c.Param("code"), req.DestinationURL)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, LinkEnvelope{
		Success: true,
		Message: "QR code updated successfully",
		Data:    toLinkResponse(link),
	})
}

func (h *LinkHandler) ListLinks(c echo.Context) error {
	ctx := c.Request().Context()

	var req ListLinksRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid pagination parameters").WithInternal(err)
	}
	page := internal.NewPage(req.Page, req.Limit)

	links, total, err := h.links.List(ctx, auth.PrincipalFrom(c), page)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ListLinksEnvelope{
		Success: true,
		Data: lo.Map(links, func(link *internal.Link, _ int) LinkResponse {
			return toLinkResponse(link)
		}),
		Pagination: Pagination{
			Page:  page.Number,
			Limit: page.Size,
			Total: total,
			Pages: page.Pages(total),
		},
	})
}

func (h *LinkHandler) QRImage(c echo.Context) error {
	ctx := c.Request().Context()

	link, err := h.links.Get(ctx, auth.PrincipalFrom(c), c.Param("code"))
	if err != nil {
		return err
	}
	if len(link.QRImage) == 0 {
		return internal.ErrLinkNotFound
	}

	c.Response().Header().Set("Cache-Control", "private, max-age=86400")
	return c.Blob(http.StatusOK, "image/png", link.QRImage)
}

// Redirect serves the public short URL. Failures render HTML pages since the
// caller is usually a phone that just scanned a code.
func (h *LinkHandler) Redirect(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("code")

	log.Debug().Str("short_code", code).Msg("redirect request")

	destination, err := h.resolver.Resolve(ctx, code)
	switch {
	case err == nil:
		return c.Redirect(http.StatusTemporaryRedirect, destination)
	case errors.Is(err, internal.ErrLinkNotFound):
		log.Info().Str("short_code", code).Msg("unknown short code")
		return c.Render(http.StatusNotFound, "not_found", notFoundPage{Code: code})
	default:
		status, _ := statusFor(err)
		log.Error().Err(err).Str("short_code", code).Msg("failed to resolve short code")
		return c.Render(status, "error", errorPage{Status: status})
	}
}
