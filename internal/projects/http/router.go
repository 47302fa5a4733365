package http

import "github.com/gin-gonic/gin"

// Register attaches the workflow routes to the given router group, typically
// /api/v1/projects.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("", h.create)
	rg.GET("", h.list)
	rg.GET("/:id", h.get)
	rg.DELETE("/:id", h.delete)
	rg.GET("/:id/gates", h.gates)

	rg.POST("/:id/base-image", h.uploadBaseImage)
	rg.POST("/:id/space-type", h.selectSpaceType)
	rg.PUT("/:id/markers", h.saveMarkers)

	rg.POST("/:id/color-scheme", h.applyColorScheme)
	rg.POST("/:id/color-scheme/skip", h.skipColorAnalysis)
	rg.POST("/:id/style", h.applyStyle)
	rg.POST("/:id/style/skip", h.skipStyleAnalysis)
	rg.PUT("/:id/preferred-stores", h.updatePreferredStores)

	rg.POST("/:id/marker-recommendations", h.generateMarkerRecommendations)
	rg.POST("/:id/inspiration-images", h.uploadInspirationImages)
	rg.POST("/:id/inspiration-images/skip", h.skipInspirationImages)
	rg.POST("/:id/inspiration-recommendations", h.generateInspirationRecommendations)
	rg.POST("/:id/product-recommendations", h.generateProductRecommendations)
	rg.POST("/:id/product-recommendations/select", h.selectRecommendation)

	rg.POST("/:id/product-search", h.searchProducts)
	rg.POST("/:id/selected-products", h.selectProduct)
	rg.POST("/:id/generate-image", h.generateImage)
	rg.POST("/:id/inspiration-redesign", h.inspirationRedesign)
}

// RegisterCatalog attaches the palette and style listings.
func (h *Handler) RegisterCatalog(rg *gin.RouterGroup) {
	rg.GET("/palettes", h.palettes)
	rg.GET("/styles", h.styles)
}
