// Package web はブラウザ向けのページと補助的な JSON エンドポイントを提供します。
package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

//go:embed templates/*.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// FlashSource はワンショットメッセージの取得元です。
type FlashSource interface {
	ConsumeFlash(c *gin.Context) []string
}

type indexData struct {
	Flashes []string
}

// IndexHandler は GET / のハンドラーを返します。フラッシュメッセージは表示と同時に消費されます。
func IndexHandler(flashes FlashSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := indexData{Flashes: flashes.ConsumeFlash(c)}
		c.Header("Cache-Control", "no-store")
		c.Render(http.StatusOK, render.HTML{
			Template: indexTemplate,
			Name:     "index.html",
			Data:     data,
		})
	}
}
