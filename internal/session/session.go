package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"board-realtime/internal/identity"
	"board-realtime/internal/model"
)

// State 보드 연결 상태
type State int

const (
	StateConnecting State = iota // 등록 전 / backlog replay 중
	StateActive                  // 이벤트 처리 중
	StateClosed                  // 연결 종료 (terminal)
)

// String 상태를 문자열로 반환
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// BoardSession 보드 연결 하나의 세션 (Thread-Safe)
type BoardSession struct {
	ID          string
	BoardID     string
	Principal   identity.Principal
	DisplayName string
	AvatarURL   string
	Role        model.Role
	ConnectedAt time.Time

	mu       sync.RWMutex
	state    State
	lastSeen time.Time
}

// New 새 세션 생성
func New(boardID string, id identity.Identity, now time.Time) *BoardSession {
	return &BoardSession{
		ID:          uuid.New().String(),
		BoardID:     boardID,
		Principal:   id.Principal,
		DisplayName: id.DisplayName,
		AvatarURL:   id.AvatarURL,
		Role:        id.Role,
		ConnectedAt: now,
		state:       StateConnecting,
		lastSeen:    now,
	}
}

// UserID 로스터 키 (익명이면 임시 ID)
func (s *BoardSession) UserID() string {
	return s.Principal.ID()
}

// Anonymous 영속화 금지 세션인지 확인
func (s *BoardSession) Anonymous() bool {
	return s.Principal.IsAnonymous()
}

// Can 최소 권한 확인
func (s *BoardSession) Can(min model.Role) bool {
	return s.Role.AtLeast(min)
}

// Activate CONNECTING → ACTIVE. 이미 닫힌 세션이면 false
func (s *BoardSession) Activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return false
	}
	s.state = StateActive
	return true
}

// Touch 마지막 활동 시각 갱신
func (s *BoardSession) Touch(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.After(s.lastSeen) {
		s.lastSeen = t
	}
}

// LastSeen 마지막 활동 시각
func (s *BoardSession) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastSeen
}

// GetState 현재 상태 조회
func (s *BoardSession) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Close 세션 종료. 최초 호출에서만 true를 반환한다
func (s *BoardSession) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	return true
}

// IsClosed 세션 종료 여부 확인
func (s *BoardSession) IsClosed() bool {
	return s.GetState() == StateClosed
}

// Duration 연결 유지 시간
func (s *BoardSession) Duration(now time.Time) time.Duration {
	return now.Sub(s.ConnectedAt)
}
