package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.GET("/config", handler.GetConfig)

		datasets := api.Group("/datasets")
		{
			datasets.GET("", handler.ListDatasets)
			datasets.POST("/upload", handler.UploadDataset)
			datasets.POST("/sample", handler.GenerateSample)
			datasets.GET("/:id", handler.GetDataset)
			datasets.DELETE("/:id", handler.DeleteDataset)

			datasets.GET("/:id/properties", handler.GetProperties)
			datasets.GET("/:id/summary", handler.GetSummary)
			datasets.GET("/:id/stats", handler.GetStats)
			datasets.GET("/:id/months", handler.GetMonthlyTrend)
			datasets.GET("/:id/floors", handler.GetFloorBuckets)
			datasets.GET("/:id/sizes", handler.GetSizeBuckets)
			datasets.GET("/:id/listings", handler.GetListings)
			datasets.GET("/:id/geojson", handler.GetGeoJSON)
			datasets.GET("/:id/hulls", handler.GetHulls)
			datasets.GET("/:id/view", handler.GetView)
		}
	}
}
