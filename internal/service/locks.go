// Пакет service — бизнес-логика Storage Server.
// locks.go — взаимное исключение мутаций по job_id.
//
// Все мутации одной записи (загрузка, отметка скачивания, ручное
// удаление, отложенное удаление, sweep) сериализуются через мьютекс
// её job_id: удаление блоба и установка tombstone не могут
// перемежаться с конкурирующей операцией над тем же идентификатором.
// Между разными job_id порядок не гарантируется.
package service

import (
	"sync"
)

// JobLocks — набор мьютексов, по одному на активный job_id.
// Мьютекс создаётся при первом захвате и удаляется, когда
// последний владелец отпускает его (refs == 0).
type JobLocks struct {
	mu    sync.Mutex
	locks map[string]*jobLock
}

type jobLock struct {
	mu   sync.Mutex
	refs int
}

// NewJobLocks создаёт пустой набор мьютексов.
func NewJobLocks() *JobLocks {
	return &JobLocks{locks: make(map[string]*jobLock)}
}

// Lock захватывает мьютекс job_id, блокируясь до освобождения.
func (l *JobLocks) Lock(jobID string) {
	l.mu.Lock()
	entry, ok := l.locks[jobID]
	if !ok {
		entry = &jobLock{}
		l.locks[jobID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// Unlock освобождает мьютекс job_id.
func (l *JobLocks) Unlock(jobID string) {
	l.mu.Lock()
	entry, ok := l.locks[jobID]
	if !ok {
		l.mu.Unlock()
		panic("service: Unlock без Lock для job_id " + jobID)
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, jobID)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}

// Len возвращает количество активных мьютексов.
func (l *JobLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
