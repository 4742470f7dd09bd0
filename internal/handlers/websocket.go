package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/psdocling/internal/common"
	"github.com/ternarybob/psdocling/internal/interfaces"
	"github.com/ternarybob/psdocling/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const writeTimeout = 5 * time.Second

// WSMessage is the envelope of every message sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is sent once when a client connects
type SnapshotPayload struct {
	ServerInstanceID string                 `json:"serverInstanceId"`
	Jobs             []*models.StatusRecord `json:"jobs"`
}

// ChangesPayload carries the records that changed since the last poll
type ChangesPayload struct {
	Jobs    []*models.StatusRecord `json:"jobs"`
	Removed []string               `json:"removed,omitempty"`
}

// StatusFeed pushes status record changes to WebSocket clients. The status
// store is shared with other processes, so changes are found by polling it.
type StatusFeed struct {
	status           interfaces.StatusStorage
	interval         time.Duration
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	seen             map[string]time.Time
	serverInstanceID string // Clients use it to detect a server restart
}

func NewStatusFeed(status interfaces.StatusStorage, interval time.Duration, logger arbor.ILogger) *StatusFeed {
	if interval <= 0 {
		interval = time.Second
	}
	f := &StatusFeed{
		status:           status,
		interval:         interval,
		logger:           logger,
		clients:          make(map[*websocket.Conn]*sync.Mutex),
		seen:             make(map[string]time.Time),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", f.serverInstanceID).Msg("Status feed initialized")
	return f
}

// HandleWebSocket upgrades the connection and sends a snapshot of every job
func (f *StatusFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	f.mu.Lock()
	f.clients[conn] = mutex
	clientCount := len(f.clients)
	f.mu.Unlock()

	f.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	defer func() {
		f.mu.Lock()
		delete(f.clients, conn)
		clientCount := len(f.clients)
		f.mu.Unlock()

		conn.Close()
		f.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	records, err := f.status.GetAll(r.Context())
	if err != nil {
		f.logger.Warn().Err(err).Msg("Failed to read status for snapshot")
		records = map[string]*models.StatusRecord{}
	}
	f.send(conn, mutex, WSMessage{
		Type: "snapshot",
		Payload: SnapshotPayload{
			ServerInstanceID: f.serverInstanceID,
			Jobs:             sortedRecords(records),
		},
	})

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				f.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// Start polls the status store until ctx is cancelled
func (f *StatusFeed) Start(ctx context.Context) {
	common.SafeGo(f.logger, "status-feed", func() {
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.Poll(ctx)
			}
		}
	})
}

// Poll broadcasts records whose update time changed since the previous poll
func (f *StatusFeed) Poll(ctx context.Context) {
	records, err := f.status.GetAll(ctx)
	if err != nil {
		f.logger.Warn().Err(err).Msg("Status feed poll failed")
		return
	}

	changes := f.diff(records)
	if len(changes.Jobs) == 0 && len(changes.Removed) == 0 {
		return
	}
	f.Broadcast(WSMessage{Type: "jobs_changed", Payload: changes})
}

// diff updates the seen set and returns what changed
func (f *StatusFeed) diff(records map[string]*models.StatusRecord) ChangesPayload {
	changes := ChangesPayload{Jobs: []*models.StatusRecord{}}
	changed := make(map[string]*models.StatusRecord)

	for id, record := range records {
		if previous, ok := f.seen[id]; !ok || !previous.Equal(record.UpdatedTime) {
			changed[id] = record
			f.seen[id] = record.UpdatedTime
		}
	}
	for id := range f.seen {
		if _, ok := records[id]; !ok {
			changes.Removed = append(changes.Removed, id)
			delete(f.seen, id)
		}
	}
	sort.Strings(changes.Removed)
	changes.Jobs = sortedRecords(changed)
	return changes
}

// Broadcast sends msg to every connected client
func (f *StatusFeed) Broadcast(msg WSMessage) {
	f.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(f.clients))
	mutexes := make([]*sync.Mutex, 0, len(f.clients))
	for conn, mutex := range f.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mutex)
	}
	f.mu.RUnlock()

	for i, conn := range clients {
		f.send(conn, mutexes[i], msg)
	}
}

func (f *StatusFeed) send(conn *websocket.Conn, mutex *sync.Mutex, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		f.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	mutex.Lock()
	defer mutex.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		f.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send to WebSocket client")
	}
}

// ClientCount returns the number of connected clients
func (f *StatusFeed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

func sortedRecords(records map[string]*models.StatusRecord) []*models.StatusRecord {
	list := make([]*models.StatusRecord, 0, len(records))
	for _, record := range records {
		list = append(list, record)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}
