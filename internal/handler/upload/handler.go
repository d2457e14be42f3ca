package upload

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatwidget/internal/middleware"
	"github.com/zhouzirui/chatwidget/internal/model/bot"
	"github.com/zhouzirui/chatwidget/internal/service/storage"
	widgetupload "github.com/zhouzirui/chatwidget/internal/widget/upload"
	"github.com/zhouzirui/chatwidget/pkg/utils"
)

// maxFormMemory 是解析 multipart 表单时保存在内存中的上限，超出部分落盘。
const maxFormMemory = 32 << 20

// Store 抽象文件存储，便于测试与替换实现
type Store interface {
	Save(ctx context.Context, name, mimeType string, r io.Reader) (storage.StoredFile, error)
	Path(key string) (string, error)
}

// Handler 上传服务的HTTP处理器
type Handler struct {
	store Store
	bots  bot.Store
}

// New 创建上传处理器
func New(store Store, bots bot.Store) *Handler {
	return &Handler{store: store, bots: bots}
}

// RegisterRoutes 注册上传接口，apiRouter 挂在 /api/v1 下，root 为根路由
func (h *Handler) RegisterRoutes(apiRouter chi.Router, root chi.Router) {
	apiRouter.With(middleware.OptionalBot(h.bots)).Post("/uploads", h.handleUpload)
	root.Get("/files/{key}", h.handleServe)
}

// handleUpload 保存 files 字段中的全部文件，任一失败则整体失败
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[widgetupload.FieldName]
	if len(headers) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "no files in field "+widgetupload.FieldName)
		return
	}

	stored := make([]storage.StoredFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "failed to open upload: "+fh.Filename)
			return
		}
		saved, err := h.store.Save(r.Context(), fh.Filename, fh.Header.Get("Content-Type"), f)
		f.Close()
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, storage.ErrTooLarge):
				status = http.StatusRequestEntityTooLarge
			case errors.Is(err, storage.ErrInvalidName):
				status = http.StatusBadRequest
			}
			log.Warn().Err(err).Str("component", "upload").Str("name", fh.Filename).Msg("store upload failed")
			utils.RespondError(w, status, "failed to store "+fh.Filename)
			return
		}
		stored = append(stored, saved)
	}

	utils.RespondJSON(w, http.StatusOK, stored)
}

// handleServe 返回已上传的文件
func (h *Handler) handleServe(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.Path(chi.URLParam(r, "key"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeFile(w, r, path)
}
