package storage

import (
	chromem "github.com/philippgille/chromem-go"
)

type ChromemAdapter struct {
	DB *chromem.DB
}

func (a *ChromemAdapter) Dialect() string { return "chromem" }

func isChromemDB(conn any) bool {
	_, ok := conn.(*chromem.DB)
	return ok
}

func newChromemAdapter(conn any) (Adapter, error) {
	db := conn.(*chromem.DB)
	return &ChromemAdapter{DB: db}, nil
}
