package widget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatwidget/internal/config"
	"github.com/zhouzirui/chatwidget/internal/widget/botconfig"
	"github.com/zhouzirui/chatwidget/internal/widget/errs"
	"github.com/zhouzirui/chatwidget/internal/widget/intake"
	"github.com/zhouzirui/chatwidget/internal/widget/session"
	"github.com/zhouzirui/chatwidget/internal/widget/upload"
)

// WebSocketHandler hosts one widget session per websocket connection.
type WebSocketHandler struct {
	cfg      config.WidgetConfig
	client   *http.Client
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建 widget WebSocket 处理器。client 用于访问问答服务，nil 表示默认客户端。
func NewWebSocketHandler(cfg config.WidgetConfig, client *http.Client) *WebSocketHandler {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebSocketHandler{
		cfg:    cfg,
		client: client,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/widget", h.handleWebSocket)
}

// connection is the per-socket state. The session is its only owner of
// conversation state; the fields here are only touched by the read loop.
type connection struct {
	id      string
	session *session.Session
	unread  *session.UnreadCounter
	writer  *connWriter
	logger  zerolog.Logger

	noticeMu   sync.Mutex
	lastNotice string
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "widget").Msg("upgrade failed")
		return
	}
	defer conn.Close()

	c := &connection{id: uuid.NewString()}
	c.logger = log.With().Str("component", "widget").Str("conn_id", c.id).Logger()
	c.writer = newConnWriter(conn, c.logger)

	stop := make(chan struct{})
	go c.writer.run(stop)
	defer func() {
		close(stop)
		<-c.writer.done
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if h.cfg.ConfigURL != "" {
		botCfg, err := botconfig.NewClient(h.cfg.ConfigURL, h.client).Fetch(ctx, h.cfg.APIKey)
		if err != nil {
			c.logger.Warn().Err(err).Msg("bot config unavailable")
			c.writer.send("error", errorFrame{Message: errs.NoticeOf(err), Fatal: errs.IsFatal(err)})
			if errs.IsFatal(err) {
				return
			}
		} else {
			c.writer.send("config", botCfg)
		}
	}

	c.unread = session.NewUnreadCounter(func(n int) {
		c.writer.send("unread", unreadFrame{Count: n, Badge: c.unread.Badge()})
	})

	sess, err := session.New(session.Options{
		Streamer:     session.NewHTTPStreamer(h.cfg.StreamURL, h.cfg.APIKey, h.client),
		Uploader:     upload.New(h.cfg.UploadURL, upload.WithHTTPClient(h.client), upload.WithCredential(h.cfg.APIKey)),
		Limits:       h.cfg.Limits(),
		NoticeTTL:    h.cfg.NoticeTTL,
		Observers:    []session.Observer{session.ObserverFunc(c.onState)},
		BotReplyHook: c.unread,
	})
	if err != nil {
		c.writer.send("error", errorFrame{Message: err.Error(), Fatal: true})
		return
	}
	c.session = sess
	defer sess.Close()

	if snap, err := sess.Snapshot(); err == nil {
		c.onState(snap)
	}

	c.logger.Info().Msg("widget connected")
	defer c.logger.Info().Msg("widget disconnected")

	conn.SetReadLimit(maxMessageBytes(h.cfg))
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := c.handleMessage(&msg); err != nil {
			if errors.Is(err, session.ErrClosed) {
				return
			}
			c.writer.send("error", errorFrame{Message: err.Error()})
		}
	}
}

// maxMessageBytes leaves room for a full selection of base64 encoded files.
func maxMessageBytes(cfg config.WidgetConfig) int64 {
	perFile := int64(cfg.MaxFileSizeMB * 1024 * 1024)
	return int64(cfg.MaxFiles)*perFile*4/3 + 64<<10
}

// onState runs on the session loop.
func (c *connection) onState(s session.Snapshot) {
	c.writer.setState(newStateFrame(s))

	c.noticeMu.Lock()
	changed := s.Notice != c.lastNotice
	c.lastNotice = s.Notice
	c.noticeMu.Unlock()
	if changed {
		c.writer.send("notice", noticeFrame{Text: s.Notice})
	}
}

type unsupportedTypeError string

func (e unsupportedTypeError) Error() string { return "unsupported message type: " + string(e) }

func (c *connection) handleMessage(msg *inboundMessage) error {
	switch msg.Type {
	case "send":
		var p TextMessage
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		_, err := c.session.Send(p.Text)
		if errors.Is(err, session.ErrNothingToSend) {
			return nil
		}
		return err
	case "input":
		var p TextMessage
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		return c.session.SetInput(p.Text)
	case "panel":
		var p PanelMessage
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		if p.Visible {
			c.unread.Reset()
		}
		return c.session.SetPanelVisible(p.Visible)
	case "stage":
		var p StageMessage
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		files := make([]intake.File, len(p.Files))
		for i, f := range p.Files {
			files[i] = intake.FromBytes(f.Name, f.MIME, f.Data)
		}
		_, err := c.session.Stage(files)
		return err
	case "remove":
		var p RemoveMessage
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		_, err := c.session.RemoveStaged(p.Index)
		return err
	case "cancel":
		return c.session.Cancel()
	default:
		return unsupportedTypeError(msg.Type)
	}
}

type invalidPayloadError struct{ err error }

func (e invalidPayloadError) Error() string { return "invalid payload: " + e.err.Error() }

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalidPayloadError{err: err}
	}
	return nil
}
