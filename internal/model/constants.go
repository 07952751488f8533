package model

// Role 보드 접근 권한 (viewer < editor < owner)
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

// String 메서드
func (r Role) String() string {
	return string(r)
}

// Rank 권한 순위 (알 수 없는 값은 0)
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast min 이상의 권한인지 확인
func (r Role) AtLeast(min Role) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

// Valid 알려진 권한인지 확인
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// ParseRole 문자열을 Role로 변환
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// StrokeMode 획 모드
type StrokeMode string

const (
	StrokeModeDraw  StrokeMode = "draw"
	StrokeModeErase StrokeMode = "erase"
)

func (m StrokeMode) String() string {
	return string(m)
}
