// Package store holds the gorm-backed collaborators the board hub persists
// through: strokes, durable presence rows and the legacy board data blob.
package store

import "errors"

var ErrBoardNotFound = errors.New("board not found")
