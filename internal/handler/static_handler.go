package handler

import (
	"bytes"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"
)

const indexFile = "index.html"

// NewStaticHandler はフロントエンドの静的ファイルを配信するハンドラーを返す。
// 存在しないパスにはindex.htmlを返す。
func NewStaticHandler(files fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(files))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name != "" {
			if info, err := fs.Stat(files, name); err == nil && !info.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
		}
		serveIndex(w, r, files)
	})
}

func serveIndex(w http.ResponseWriter, r *http.Request, files fs.FS) {
	data, err := fs.ReadFile(files, indexFile)
	if err != nil {
		slog.Error("failed to read index.html", slog.String("error", err.Error()))
		http.NotFound(w, r)
		return
	}

	var modTime time.Time
	if info, err := fs.Stat(files, indexFile); err == nil {
		modTime = info.ModTime()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, indexFile, modTime, bytes.NewReader(data))
}
