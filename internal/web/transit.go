package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TransitTimesResponse は GET /transit_times の応答です。
// 外部の運行データとの連携は未実装のため、現状は空のオブジェクトを返します。
type TransitTimesResponse struct{}

// TransitTimes は GET /transit_times のハンドラーです。
func TransitTimes(c *gin.Context) {
	c.JSON(http.StatusOK, TransitTimesResponse{})
}
