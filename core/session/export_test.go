package session

import "time"

func SetNowFunc(m *Manager, now func() time.Time) { m.nowFunc = now }
