package inmemdb

import (
	"sync"

	"github.com/trezcool/sauti/core/feedback"
	"github.com/trezcool/sauti/core/user"
)

type (
	DB struct {
		user     *userTable
		feedback *feedbackTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	feedbackTable struct {
		table map[string]*feedback.Feedback
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:     &userTable{table: make(map[string]*user.User)},
		feedback: &feedbackTable{table: make(map[string]*feedback.Feedback)},
	}
}
