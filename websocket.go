package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"paper-registry/services"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsReadTimeout   = 60 * time.Second
	wsPingInterval  = 25 * time.Second
	wsMaxIntentSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 16384,
	// Authentifiziert wird über das Token, nicht über den Origin
	CheckOrigin: func(*http.Request) bool { return true },
}

// workspaceHandler verbindet einen Client per Websocket mit seinem Workspace:
// Intents kommen als JSON herein, jeder neue ViewState geht als JSON hinaus.
func (a *app) workspaceHandler(serverCtx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetString(tokenKey)
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			a.log.Warn("Websocket upgrade failed", zap.Error(err))
			return
		}
		defer ws.Close()

		handleCtx, handleCancel := context.WithCancel(serverCtx)
		defer handleCancel()

		w := services.NewWorkspace(token, services.WorkspaceOptions{
			Source:     a.store,
			Executor:   a.executor,
			Identities: a.provider,
			Roles:      a.roles,
			Policy:     a.policy,
			Collection: a.cfg.PapersCollection,
			Memo:       a.memo,
			Logger:     a.log,
		})
		go func() {
			defer handleCancel()
			if err := w.Run(handleCtx); err != nil {
				a.log.Error("Workspace failed", zap.Error(err))
			}
		}()

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			defer handleCancel()

			ping := time.NewTicker(wsPingInterval)
			defer ping.Stop()
			for {
				select {
				case <-handleCtx.Done():
					// beendet auch den blockierten ReadJSON
					ws.Close()
					return
				case st := <-w.Updates():
					ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
					if err := ws.WriteJSON(st); err != nil {
						a.log.Info("Websocket write failed", zap.Error(err))
						ws.Close()
						return
					}
				case <-ping.C:
					ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
					if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
						ws.Close()
						return
					}
				}
			}
		}()

		ws.SetReadLimit(wsMaxIntentSize)
		ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})
		for {
			var in services.Intent
			if err := ws.ReadJSON(&in); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					a.log.Info("Websocket closed", zap.Error(err))
				}
				break
			}
			ws.SetReadDeadline(time.Now().Add(wsReadTimeout))
			if err := w.Dispatch(handleCtx, in); err != nil {
				break
			}
		}

		handleCancel()
		<-writerDone
		<-w.Done()
	}
}
