package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tinode/tinodesdk/model"
	"github.com/tinode/tinodesdk/store"
)

type topicRow struct {
	Id          int64          `db:"id"`
	Name        string         `db:"name"`
	IsNew       bool           `db:"isnew"`
	MaxDel      int            `db:"maxdel"`
	SubsUpdated sql.NullTime   `db:"subsupdated"`
	Seq         int            `db:"seq"`
	ReadSeq     int            `db:"readseq"`
	RecvSeq     int            `db:"recvseq"`
	ClearSeq    int            `db:"clearseq"`
	Description sql.NullString `db:"description"`
	Tags        sql.NullString `db:"tags"`
	Aux         sql.NullString `db:"aux"`
}

func (r *topicRow) record() *store.TopicRecord {
	t := &store.TopicRecord{
		Id:     r.Id,
		Name:   r.Name,
		IsNew:  r.IsNew,
		MaxDel: r.MaxDel,
		Desc:   &model.Description{},
	}
	if r.SubsUpdated.Valid {
		ts := r.SubsUpdated.Time.UTC()
		t.SubsUpdated = &ts
	}
	fromJSON(r.Description, t.Desc)
	// Counters are kept in columns so they can be advanced without rewriting the description.
	t.Desc.Seq = r.Seq
	t.Desc.Read = r.ReadSeq
	t.Desc.Recv = r.RecvSeq
	t.Desc.Clear = r.ClearSeq
	fromJSON(r.Tags, &t.Tags)
	fromJSON(r.Aux, &t.Aux)
	return t
}

type messageRow struct {
	Id      int64          `db:"id"`
	Topic   string         `db:"topic"`
	Sender  string         `db:"sender"`
	Ts      time.Time      `db:"ts"`
	Seq     int            `db:"seq"`
	Status  int            `db:"status"`
	Head    sql.NullString `db:"head"`
	Content sql.NullString `db:"content"`
}

func (r *messageRow) message() *store.Message {
	m := &store.Message{
		Id:     r.Id,
		Topic:  r.Topic,
		From:   r.Sender,
		Ts:     r.Ts.UTC(),
		Seq:    r.Seq,
		Status: store.MsgStatus(r.Status),
	}
	fromJSON(r.Head, &m.Head)
	if r.Content.Valid {
		m.Content = json.RawMessage(r.Content.String)
	}
	return m
}

func descCounters(desc *model.Description) (seq, read, recv, clear int) {
	if desc == nil {
		return
	}
	return desc.Seq, desc.Read, desc.Recv, desc.Clear
}

func (a *adapter) MyUid() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.myUid
}

func (a *adapter) SetMyUid(uid string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.myUid == uid {
		return nil
	}
	err := a.withTx(func(ctx context.Context, tx *sqlx.Tx) error {
		// Different user, the cached data is not valid anymore.
		if err := a.clearData(ctx, tx); err != nil {
			return err
		}
		return a.setKv(ctx, tx, keyMyUid, uid)
	})
	if err == nil {
		a.myUid = uid
	}
	return err
}

func (a *adapter) DeviceToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.deviceToken
}

func (a *adapter) SetDeviceToken(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := a.getContext()
	defer cancel()
	if err := a.setKv(ctx, a.db, keyDevToken, token); err != nil {
		return err
	}
	a.deviceToken = token
	return nil
}

func (a *adapter) Logout() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.withTx(func(ctx context.Context, tx *sqlx.Tx) error {
		if err := a.clearData(ctx, tx); err != nil {
			return err
		}
		if err := a.setKv(ctx, tx, keyMyUid, ""); err != nil {
			return err
		}
		return a.setKv(ctx, tx, keyDevToken, "")
	})
	if err == nil {
		a.myUid = ""
		a.deviceToken = ""
	}
	return err
}

func (a *adapter) SetTimeAdjustment(adj time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := a.getContext()
	defer cancel()
	if err := a.setKv(ctx, a.db, keyTimeAdjust, strconv.FormatInt(adj.Milliseconds(), 10)); err != nil {
		return err
	}
	a.timeAdjust = adj
	return nil
}

func (a *adapter) IsReady() bool {
	return a.IsOpen() && a.MyUid() != ""
}

func (a *adapter) now() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return time.Now().Add(a.timeAdjust).UTC().Round(time.Millisecond)
}

// Topics

func (a *adapter) TopicGetAll() ([]*store.TopicRecord, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var rows []topicRow
	if err := a.db.SelectContext(ctx, &rows, "SELECT * FROM topics ORDER BY id"); err != nil {
		return nil, err
	}
	all := make([]*store.TopicRecord, 0, len(rows))
	for i := range rows {
		all = append(all, rows[i].record())
	}
	return all, nil
}

func (a *adapter) TopicAdd(topic *store.TopicRecord) (int64, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	seq, read, recv, clear := descCounters(topic.Desc)
	id, err := a.insert(ctx, a.db,
		"INSERT INTO topics(name, isnew, maxdel, subsupdated, seq, readseq, recvseq, clearseq, description, tags, aux) "+
			"VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		topic.Name, topic.IsNew, topic.MaxDel, topic.SubsUpdated, seq, read, recv, clear,
		toJSON(topic.Desc), toJSON(topic.Tags), toJSON(topic.Aux))
	if isDupe(err) {
		return 0, store.ErrDuplicate
	}
	return id, err
}

func (a *adapter) TopicUpdate(topic *store.TopicRecord) error {
	ctx, cancel := a.getContext()
	defer cancel()

	seq, read, recv, clear := descCounters(topic.Desc)
	res, err := a.db.ExecContext(ctx, a.db.Rebind(
		"UPDATE topics SET isnew=?, maxdel=?, subsupdated=?, seq=?, readseq=?, recvseq=?, clearseq=?, "+
			"description=?, tags=?, aux=? WHERE name=?"),
		topic.IsNew, topic.MaxDel, topic.SubsUpdated, seq, read, recv, clear,
		toJSON(topic.Desc), toJSON(topic.Tags), toJSON(topic.Aux), topic.Name)
	if err != nil {
		return err
	}
	return a.checkFound(ctx, res, "SELECT COUNT(*) FROM topics WHERE name=?", topic.Name)
}

// checkFound returns ErrNotFound if the statement affected no rows and the row does not exist.
// MySQL does not count rows which were matched but not changed.
func (a *adapter) checkFound(ctx context.Context, res sql.Result, query string, args ...any) error {
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	var count int
	if err := a.db.GetContext(ctx, &count, a.db.Rebind(query), args...); err != nil {
		return err
	}
	if count == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (a *adapter) TopicDelete(name string) error {
	return a.withTx(func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM topics WHERE name=?"), name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		for _, table := range []string{"subscriptions", "messages", "dellog"} {
			if _, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM "+table+" WHERE topic=?"), name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *adapter) TopicRename(oldName, newName string) error {
	return a.withTx(func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind("UPDATE topics SET name=?, isnew=? WHERE name=?"), newName, false, oldName)
		if err != nil {
			if isDupe(err) {
				return store.ErrDuplicate
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		for _, table := range []string{"subscriptions", "messages", "dellog"} {
			if _, err = tx.ExecContext(ctx, tx.Rebind("UPDATE "+table+" SET topic=? WHERE topic=?"), newName, oldName); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *adapter) CachedMessagesRange(topic string) (model.MsgRange, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var low, hi int
	err := a.db.QueryRowxContext(ctx, a.db.Rebind(
		"SELECT COALESCE(MIN(seq), 0), COALESCE(MAX(seq), 0) FROM messages WHERE topic=? AND seq>0"), topic).
		Scan(&low, &hi)
	if err != nil || low == 0 {
		return model.MsgRange{}, err
	}
	return model.MsgRange{Low: low, Hi: hi + 1}, nil
}

func (a *adapter) advanceTopic(column, topic string, val int) error {
	ctx, cancel := a.getContext()
	defer cancel()

	res, err := a.db.ExecContext(ctx, a.db.Rebind("UPDATE topics SET "+column+"=? WHERE name=? AND "+column+"<?"),
		val, topic, val)
	if err != nil {
		return err
	}
	return a.checkFound(ctx, res, "SELECT COUNT(*) FROM topics WHERE name=?", topic)
}

func (a *adapter) SetRead(topic string, read int) error {
	return a.advanceTopic("readseq", topic, read)
}

func (a *adapter) SetRecv(topic string, recv int) error {
	return a.advanceTopic("recvseq", topic, recv)
}

// Subscriptions

func (a *adapter) addSub(topic string, sub *model.Subscription, pending bool) (int64, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	id, err := a.insert(ctx, a.db,
		"INSERT INTO subscriptions(topic, userid, pending, readseq, recvseq, data) VALUES(?, ?, ?, ?, ?, ?)",
		topic, sub.User, pending, sub.Read, sub.Recv, toJSON(sub))
	if isDupe(err) {
		return 0, store.ErrDuplicate
	}
	return id, err
}

func (a *adapter) SubAdd(topic string, sub *model.Subscription) (int64, error) {
	return a.addSub(topic, sub, false)
}

func (a *adapter) SubNew(topic string, sub *model.Subscription) (int64, error) {
	return a.addSub(topic, sub, true)
}

func (a *adapter) SubUpdate(topic string, sub *model.Subscription) error {
	ctx, cancel := a.getContext()
	defer cancel()

	res, err := a.db.ExecContext(ctx, a.db.Rebind(
		"UPDATE subscriptions SET pending=?, readseq=?, recvseq=?, data=? WHERE topic=? AND userid=?"),
		false, sub.Read, sub.Recv, toJSON(sub), topic, sub.User)
	if err != nil {
		return err
	}
	return a.checkFound(ctx, res, "SELECT COUNT(*) FROM subscriptions WHERE topic=? AND userid=?", topic, sub.User)
}

func (a *adapter) SubDelete(topic, user string) error {
	ctx, cancel := a.getContext()
	defer cancel()

	res, err := a.db.ExecContext(ctx, a.db.Rebind("DELETE FROM subscriptions WHERE topic=? AND userid=?"), topic, user)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (a *adapter) Subscriptions(topic string) ([]*model.Subscription, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	rows, err := a.db.QueryxContext(ctx, a.db.Rebind(
		"SELECT readseq, recvseq, data FROM subscriptions WHERE topic=? ORDER BY userid"), topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		var read, recv int
		var data sql.NullString
		if err = rows.Scan(&read, &recv, &data); err != nil {
			return nil, err
		}
		var sub model.Subscription
		fromJSON(data, &sub)
		sub.Read, sub.Recv = read, recv
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// Users

func (a *adapter) UserGet(uid string) (*store.User, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var row struct {
		Id      int64          `db:"id"`
		Uid     string         `db:"uid"`
		Updated sql.NullTime   `db:"updated"`
		Pub     sql.NullString `db:"pub"`
	}
	err := a.db.GetContext(ctx, &row, a.db.Rebind("SELECT id, uid, updated, pub FROM users WHERE uid=?"), uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user := &store.User{Id: row.Id, Uid: row.Uid}
	if row.Updated.Valid {
		ts := row.Updated.Time.UTC()
		user.Updated = &ts
	}
	fromJSON(row.Pub, &user.Public)
	return user, nil
}

func (a *adapter) UserAdd(user *store.User) (int64, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	id, err := a.insert(ctx, a.db, "INSERT INTO users(uid, updated, pub) VALUES(?, ?, ?)",
		user.Uid, user.Updated, toJSON(user.Public))
	if isDupe(err) {
		return 0, store.ErrDuplicate
	}
	return id, err
}

func (a *adapter) UserUpdate(user *store.User) error {
	ctx, cancel := a.getContext()
	defer cancel()

	res, err := a.db.ExecContext(ctx, a.db.Rebind("UPDATE users SET updated=?, pub=? WHERE uid=?"),
		user.Updated, toJSON(user.Public), user.Uid)
	if err != nil {
		return err
	}
	return a.checkFound(ctx, res, "SELECT COUNT(*) FROM users WHERE uid=?", user.Uid)
}

// Messages

func (a *adapter) MsgReceived(msg *model.MsgServerData) (int64, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var id int64
	err := a.db.GetContext(ctx, &id, a.db.Rebind("SELECT id FROM messages WHERE topic=? AND seq=?"), msg.Topic, msg.SeqId)
	if err == nil {
		return id, store.ErrDuplicate
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	return a.insert(ctx, a.db,
		"INSERT INTO messages(topic, sender, ts, seq, status, head, content) VALUES(?, ?, ?, ?, ?, ?, ?)",
		msg.Topic, msg.From, msg.Timestamp.UTC(), msg.SeqId, int(store.StatusSynced), toJSON(msg.Head), string(msg.Content))
}

func (a *adapter) insertLocal(topic, from string, head map[string]any, content json.RawMessage, status store.MsgStatus) (int64, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	return a.insert(ctx, a.db,
		"INSERT INTO messages(topic, sender, ts, seq, status, head, content) VALUES(?, ?, ?, ?, ?, ?, ?)",
		topic, from, a.now(), 0, int(status), toJSON(head), string(content))
}

func (a *adapter) MsgSend(topic, from string, head map[string]any, content json.RawMessage) (int64, error) {
	return a.insertLocal(topic, from, head, content, store.StatusQueued)
}

func (a *adapter) MsgDraft(topic, from string, head map[string]any, content json.RawMessage) (int64, error) {
	return a.insertLocal(topic, from, head, content, store.StatusDraft)
}

// updateMsg runs the update and returns ErrNotFound if no message matched the condition.
func (a *adapter) updateMsg(query string, args ...any) error {
	ctx, cancel := a.getContext()
	defer cancel()

	res, err := a.db.ExecContext(ctx, a.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (a *adapter) MsgDraftUpdate(topic string, id int64, content json.RawMessage) error {
	return a.updateMsg("UPDATE messages SET content=? WHERE id=? AND topic=? AND status=?",
		string(content), id, topic, int(store.StatusDraft))
}

func (a *adapter) MsgReady(topic string, id int64, content json.RawMessage) error {
	if content == nil {
		return a.updateMsg("UPDATE messages SET status=? WHERE id=? AND topic=? AND status=?",
			int(store.StatusQueued), id, topic, int(store.StatusDraft))
	}
	return a.updateMsg("UPDATE messages SET status=?, content=? WHERE id=? AND topic=? AND status=?",
		int(store.StatusQueued), string(content), id, topic, int(store.StatusDraft))
}

func (a *adapter) MsgDiscard(topic string, id int64) error {
	return a.updateMsg("DELETE FROM messages WHERE id=? AND topic=? AND seq=0", id, topic)
}

func (a *adapter) MsgSyncing(topic string, id int64, sync bool) error {
	from, to := store.StatusSending, store.StatusQueued
	if sync {
		from, to = to, from
	}
	ctx, cancel := a.getContext()
	defer cancel()

	res, err := a.db.ExecContext(ctx, a.db.Rebind("UPDATE messages SET status=? WHERE id=? AND topic=? AND status=?"),
		int(to), id, topic, int(from))
	if err != nil {
		return err
	}
	return a.checkFound(ctx, res, "SELECT COUNT(*) FROM messages WHERE id=? AND topic=?", id, topic)
}

func (a *adapter) MsgFailed(topic string, id int64) error {
	ctx, cancel := a.getContext()
	defer cancel()

	res, err := a.db.ExecContext(ctx, a.db.Rebind("UPDATE messages SET status=? WHERE id=? AND topic=? AND status<>?"),
		int(store.StatusFailed), id, topic, int(store.StatusSynced))
	if err != nil {
		return err
	}
	return a.checkFound(ctx, res, "SELECT COUNT(*) FROM messages WHERE id=? AND topic=?", id, topic)
}

func (a *adapter) MsgDelivered(topic string, id int64, ts time.Time, seq int) error {
	ctx, cancel := a.getContext()
	defer cancel()

	res, err := a.db.ExecContext(ctx, a.db.Rebind("UPDATE messages SET status=?, ts=?, seq=? WHERE id=? AND topic=?"),
		int(store.StatusSynced), ts.UTC(), seq, id, topic)
	if err != nil {
		return err
	}
	return a.checkFound(ctx, res, "SELECT COUNT(*) FROM messages WHERE id=? AND topic=?", id, topic)
}

func (a *adapter) MsgMarkToDelete(topic string, ranges []model.MsgRange, hard bool) error {
	status := store.StatusDeletedSoft
	if hard {
		status = store.StatusDeletedHard
	}
	return a.withTx(func(ctx context.Context, tx *sqlx.Tx) error {
		for _, r := range ranges {
			if _, err := tx.ExecContext(ctx, tx.Rebind(
				"UPDATE messages SET status=? WHERE topic=? AND seq>=? AND seq<? AND seq>0 AND status=?"),
				int(status), topic, r.Low, r.Upper(), int(store.StatusSynced)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *adapter) MsgDelete(topic string, delId int, ranges []model.MsgRange) error {
	ranges = model.Collapse(append([]model.MsgRange(nil), ranges...))
	return a.withTx(func(ctx context.Context, tx *sqlx.Tx) error {
		for _, r := range ranges {
			if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM messages WHERE topic=? AND seq>=? AND seq<? AND seq>0"),
				topic, r.Low, r.Upper()); err != nil {
				return err
			}
			if delId <= 0 {
				continue
			}
			if _, err := a.insert(ctx, tx, "INSERT INTO dellog(topic, delid, low, hi) VALUES(?, ?, ?, ?)",
				topic, delId, r.Low, r.Upper()); err != nil {
				return err
			}
		}
		if delId > 0 {
			if _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE topics SET maxdel=? WHERE name=? AND maxdel<?"),
				delId, topic, delId); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *adapter) advanceSub(column, topic, user string, val int) error {
	ctx, cancel := a.getContext()
	defer cancel()

	res, err := a.db.ExecContext(ctx, a.db.Rebind("UPDATE subscriptions SET "+column+"=? WHERE topic=? AND userid=? AND "+column+"<?"),
		val, topic, user, val)
	if err != nil {
		return err
	}
	return a.checkFound(ctx, res, "SELECT COUNT(*) FROM subscriptions WHERE topic=? AND userid=?", topic, user)
}

func (a *adapter) MsgRecvByRemote(topic, user string, recv int) error {
	return a.advanceSub("recvseq", topic, user, recv)
}

func (a *adapter) MsgReadByRemote(topic, user string, read int) error {
	return a.advanceSub("readseq", topic, user, read)
}

func (a *adapter) MessageByID(id int64) (*store.Message, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var row messageRow
	err := a.db.GetContext(ctx, &row, a.db.Rebind("SELECT * FROM messages WHERE id=?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.message(), nil
}

func (a *adapter) selectMessages(query string, args ...any) ([]*store.Message, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var rows []messageRow
	if err := a.db.SelectContext(ctx, &rows, a.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	msgs := make([]*store.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].message())
	}
	return msgs, nil
}

func (a *adapter) Messages(topic string, since, before int) ([]*store.Message, error) {
	if before > 0 {
		return a.selectMessages("SELECT * FROM messages WHERE topic=? AND seq>0 AND seq>=? AND seq<? ORDER BY seq",
			topic, since, before)
	}
	return a.selectMessages("SELECT * FROM messages WHERE topic=? AND seq>0 AND seq>=? ORDER BY seq", topic, since)
}

func (a *adapter) QueuedMessages(topic string) ([]*store.Message, error) {
	return a.selectMessages("SELECT * FROM messages WHERE topic=? AND status=? ORDER BY id", topic, int(store.StatusQueued))
}

func (a *adapter) QueuedMessageDeletes(topic string, hard bool) ([]model.MsgRange, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	status := store.StatusDeletedSoft
	if hard {
		status = store.StatusDeletedHard
	}
	var list []int
	if err := a.db.SelectContext(ctx, &list, a.db.Rebind("SELECT seq FROM messages WHERE topic=? AND status=? ORDER BY seq"),
		topic, int(status)); err != nil {
		return nil, err
	}
	return model.ListToRanges(list), nil
}

func (a *adapter) DelLog(topic string) ([]store.DelLogEntry, error) {
	ctx, cancel := a.getContext()
	defer cancel()

	var log []store.DelLogEntry
	err := a.db.SelectContext(ctx, &log, a.db.Rebind("SELECT topic, delid, low, hi FROM dellog WHERE topic=? ORDER BY id"), topic)
	return log, err
}
