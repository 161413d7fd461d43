package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/chenyukaola/feeds-service/internal/errs"
	"github.com/chenyukaola/feeds-service/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestChannelStore_Insert_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewChannelStore(db)

	ch := &model.Channel{
		ChanID: 1, Name: "news", Intro: "daily",
		Owner:      model.UserInfo{UID: "u1", Name: "alice", DID: "did:example:alice"},
		CreatedAt:  time.Now(),
		UpdAt:      time.Now(),
		NextPostID: 1,
	}
	mock.ExpectExec(`INSERT INTO channels`).
		WithArgs(ch.ChanID, ch.Name, ch.Intro, ch.Owner.UID, ch.Owner.Name, ch.Owner.DID, ch.CreatedAt, ch.UpdAt, ch.Subs, ch.NextPostID, ch.Avatar).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Insert(context.Background(), ch))
}

func TestChannelStore_Insert_DuplicateName(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewChannelStore(db)

	ch := &model.Channel{ChanID: 1, Name: "news"}
	mock.ExpectExec(`INSERT INTO channels`).
		WithArgs(ch.ChanID, ch.Name, ch.Intro, ch.Owner.UID, ch.Owner.Name, ch.Owner.DID, ch.CreatedAt, ch.UpdAt, ch.Subs, ch.NextPostID, ch.Avatar).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.Insert(context.Background(), ch)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestChannelStore_LoadAll(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewChannelStore(db)

	now := time.Now()
	rows := pgxmock.NewRows([]string{"chan_id", "name", "intro", "owner_uid", "owner_name", "owner_did", "created_at", "upd_at", "subs", "next_post_id", "avatar"}).
		AddRow(uint64(1), "news", "daily", "u1", "alice", "did:example:alice", now, now, uint64(3), uint64(5), []byte(nil)).
		AddRow(uint64(2), "sports", "", "u2", "bob", "did:example:bob", now, now, uint64(0), uint64(1), []byte(nil))
	mock.ExpectQuery(`SELECT chan_id, name, intro, owner_uid, owner_name, owner_did, created_at, upd_at, subs, next_post_id, avatar`).
		WillReturnRows(rows)

	got, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(1), got[0].ChanID)
	require.Equal(t, "news", got[0].Name)
	require.Equal(t, uint64(5), got[0].NextPostID)
}

func TestChannelStore_UpdateCounters(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewChannelStore(db)

	ch := &model.Channel{ChanID: 1, Subs: 4, NextPostID: 9, UpdAt: time.Now()}
	mock.ExpectExec(`UPDATE channels SET subs=\$2, next_post_id=\$3, upd_at=\$4 WHERE chan_id=\$1`).
		WithArgs(ch.ChanID, ch.Subs, ch.NextPostID, ch.UpdAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateCounters(context.Background(), ch))
}
