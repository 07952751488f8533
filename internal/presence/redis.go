package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel 보드 프레즌스 변경 이벤트 채널
const Channel = "board_presence"

// Action 프레즌스 변경 종류
type Action string

const (
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
)

// Entry Redis에 저장될 로스터 항목
type Entry struct {
	UserID        string `json:"user_id"`
	DisplayName   string `json:"display_name"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	ServerID      string `json:"server_id"` // 멀티 서버 확장 대비
}

// Event board_presence 채널로 발행되는 메시지
type Event struct {
	BoardID string `json:"board_id"`
	Action  Action `json:"action"`
	Entry   Entry  `json:"entry"`
}

// Mirror 인메모리 로스터를 Redis에 복제 (외부 조회/모니터링용, 권한의 원천은 아님)
type Mirror struct {
	client   *redis.Client
	ttl      time.Duration
	serverID string
}

// NewMirror REDIS_URL로 연결
func NewMirror(url string, ttl time.Duration, serverID string) (*Mirror, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 10

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Printf("[Redis] Connected to %s", opts.Addr)
	return NewMirrorWithClient(client, ttl, serverID), nil
}

// NewMirrorWithClient 기존 클라이언트로 생성
func NewMirrorWithClient(client *redis.Client, ttl time.Duration, serverID string) *Mirror {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Mirror{client: client, ttl: ttl, serverID: serverID}
}

func boardKey(boardID string) string {
	return "board:" + boardID + ":presence"
}

// Join 로스터 항목 기록 및 join 이벤트 발행
func (m *Mirror) Join(ctx context.Context, boardID string, e Entry) error {
	e.ServerID = m.serverID
	if e.LastHeartbeat == 0 {
		e.LastHeartbeat = time.Now().Unix()
	}
	if err := m.put(ctx, boardID, e); err != nil {
		return err
	}
	return m.publish(ctx, Event{BoardID: boardID, Action: ActionJoin, Entry: e})
}

// Touch 하트비트 갱신 (TTL 연장). 항목이 없으면 무시
func (m *Mirror) Touch(ctx context.Context, boardID, userID string, at time.Time) error {
	val, err := m.client.HGet(ctx, boardKey(boardID), userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return err
	}
	e.LastHeartbeat = at.Unix()
	return m.put(ctx, boardID, e)
}

// Leave 로스터 항목 삭제 및 leave 이벤트 발행
func (m *Mirror) Leave(ctx context.Context, boardID, userID string) error {
	if err := m.client.HDel(ctx, boardKey(boardID), userID).Err(); err != nil {
		return err
	}
	return m.publish(ctx, Event{
		BoardID: boardID,
		Action:  ActionLeave,
		Entry:   Entry{UserID: userID, ServerID: m.serverID, LastHeartbeat: time.Now().Unix()},
	})
}

// Roster 보드의 복제된 로스터 조회
func (m *Mirror) Roster(ctx context.Context, boardID string) ([]Entry, error) {
	vals, err := m.client.HGetAll(ctx, boardKey(boardID)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(vals))
	for _, v := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Subscribe 프레즌스 이벤트 구독
func (m *Mirror) Subscribe(ctx context.Context) *redis.PubSub {
	return m.client.Subscribe(ctx, Channel)
}

// Health Redis 상태 확인
func (m *Mirror) Health(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close 연결 종료
func (m *Mirror) Close() error {
	return m.client.Close()
}

func (m *Mirror) put(ctx context.Context, boardID string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	key := boardKey(boardID)
	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, e.UserID, data)
	pipe.Expire(ctx, key, m.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (m *Mirror) publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return m.client.Publish(ctx, Channel, data).Err()
}
