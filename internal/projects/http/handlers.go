package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/service"
)

func (h *Handler) create(c *gin.Context) {
	p, err := h.svc.Create(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "project": view(p)})
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": items})
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": view(p)})
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) gates(c *gin.Context) {
	g, err := h.svc.Gates(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "gates": g})
}

// respond writes the committed project or maps the error.
func (h *Handler) respond(c *gin.Context, p *domain.Project, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": view(p)})
}

func (h *Handler) uploadBaseImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "missing image file")
		return
	}
	data, err := h.readUpload(fh)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	var isEmpty *bool
	if raw := strings.TrimSpace(c.PostForm("is_empty_room")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "is_empty_room must be a boolean")
			return
		}
		isEmpty = &v
	}

	p, err := h.svc.UploadBaseImage(c.Request.Context(), c.Param("id"), data, isEmpty)
	h.respond(c, p, err)
}

func (h *Handler) selectSpaceType(c *gin.Context) {
	var req spaceTypeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	p, err := h.svc.SelectSpaceType(c.Request.Context(), c.Param("id"), req.SpaceType)
	h.respond(c, p, err)
}

func (h *Handler) saveMarkers(c *gin.Context) {
	var req markersReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	p, err := h.svc.SaveImprovementMarkers(c.Request.Context(), c.Param("id"), req.Markers)
	h.respond(c, p, err)
}

func (h *Handler) applyColorScheme(c *gin.Context) {
	var req service.ColorSchemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	p, err := h.svc.ApplyColorScheme(c.Request.Context(), c.Param("id"), req)
	h.respond(c, p, err)
}

func (h *Handler) skipColorAnalysis(c *gin.Context) {
	p, err := h.svc.SkipColorAnalysis(c.Request.Context(), c.Param("id"))
	h.respond(c, p, err)
}

func (h *Handler) applyStyle(c *gin.Context) {
	var req service.StyleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	p, err := h.svc.ApplyStyle(c.Request.Context(), c.Param("id"), req)
	h.respond(c, p, err)
}

func (h *Handler) skipStyleAnalysis(c *gin.Context) {
	p, err := h.svc.SkipStyleAnalysis(c.Request.Context(), c.Param("id"))
	h.respond(c, p, err)
}

func (h *Handler) updatePreferredStores(c *gin.Context) {
	var req storesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	p, err := h.svc.UpdatePreferredStores(c.Request.Context(), c.Param("id"), req.Stores)
	h.respond(c, p, err)
}

func (h *Handler) generateMarkerRecommendations(c *gin.Context) {
	p, err := h.svc.GenerateMarkerRecommendations(c.Request.Context(), c.Param("id"))
	h.respond(c, p, err)
}

func (h *Handler) uploadInspirationImages(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "expected multipart form")
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		badRequest(c, "missing images")
		return
	}
	if len(files) > service.MaxInspirationImages {
		badRequest(c, fmt.Sprintf("at most %d inspiration images allowed", service.MaxInspirationImages))
		return
	}
	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := h.readUpload(fh)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		images = append(images, data)
	}
	p, err := h.svc.UploadInspirationImages(c.Request.Context(), c.Param("id"), images)
	h.respond(c, p, err)
}

func (h *Handler) skipInspirationImages(c *gin.Context) {
	p, err := h.svc.SkipInspirationImages(c.Request.Context(), c.Param("id"))
	h.respond(c, p, err)
}

func (h *Handler) generateInspirationRecommendations(c *gin.Context) {
	p, err := h.svc.GenerateInspirationRecommendations(c.Request.Context(), c.Param("id"))
	h.respond(c, p, err)
}

func (h *Handler) generateProductRecommendations(c *gin.Context) {
	p, err := h.svc.GenerateProductRecommendations(c.Request.Context(), c.Param("id"))
	h.respond(c, p, err)
}

func (h *Handler) selectRecommendation(c *gin.Context) {
	var req selectRecommendationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	p, err := h.svc.SelectRecommendation(c.Request.Context(), c.Param("id"), req.Recommendation)
	h.respond(c, p, err)
}

func (h *Handler) searchProducts(c *gin.Context) {
	p, err := h.svc.SearchProducts(c.Request.Context(), c.Param("id"))
	h.respond(c, p, err)
}

func (h *Handler) selectProduct(c *gin.Context) {
	var req service.SelectProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}
	p, err := h.svc.SelectProduct(c.Request.Context(), c.Param("id"), req)
	h.respond(c, p, err)
}

func (h *Handler) generateImage(c *gin.Context) {
	p, err := h.svc.GenerateImage(c.Request.Context(), c.Param("id"))
	h.respond(c, p, err)
}

func (h *Handler) inspirationRedesign(c *gin.Context) {
	p, err := h.svc.InspirationRedesign(c.Request.Context(), c.Param("id"))
	h.respond(c, p, err)
}

func (h *Handler) palettes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "palettes": h.svc.Catalog().Palettes()})
}

func (h *Handler) styles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "styles": h.svc.Catalog().Styles()})
}

func (h *Handler) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > h.maxUpload {
		return nil, fmt.Errorf("%s exceeds %d bytes", fh.Filename, h.maxUpload)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if int64(len(data)) > h.maxUpload {
		return nil, fmt.Errorf("%s exceeds %d bytes", fh.Filename, h.maxUpload)
	}
	return data, nil
}
