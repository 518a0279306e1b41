// Package sampledb records sampler runs and served snapshots in a ClickHouse database.
package sampledb

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const databaseName = "signals" // official SQL name of the database

const timeFormat = "2006-01-02 15:04:05.000000"

// Options says where the database lives. Credentials come from the environment
// variables SIGNALS_DB_USER and SIGNALS_DB_PASSWORD.
type Options struct {
	Addr        string
	DialTimeout time.Duration
	Logger      *log.Logger // defaults to log.Default()
}

// Connection records activity to ClickHouse. A Connection that failed to connect,
// or a dummy one, silently drops every record.
type Connection struct {
	conn      clickhouse.Conn
	err       error      // set once something fails; the connection is then unused
	errLock   sync.Mutex // guards err, written by the handler and read by recorders
	activity  *ActivityMessage
	snapshots chan *SnapshotMessage
	logger    *log.Logger
	sync.WaitGroup
}

// IsConnected tells whether records will reach the database.
func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.Err() == nil)
}

// Err returns the error that disconnected db, if any.
func (db *Connection) Err() error {
	if db == nil {
		return nil
	}
	db.errLock.Lock()
	defer db.errLock.Unlock()
	return db.err
}

func (db *Connection) setErr(err error) {
	db.errLock.Lock()
	defer db.errLock.Unlock()
	if db.err == nil {
		db.err = err
	}
}

// PingServer connects, prints the server version and disconnects.
func PingServer(opt Options) error {
	db := createConnection(opt)
	if !db.IsConnected() {
		return fmt.Errorf("database is not connected: %v", db.Err())
	}
	defer db.conn.Close()
	v, err := db.conn.ServerVersion()
	if err != nil {
		return err
	}
	fmt.Printf("ClickHouse server is alive. Version:\n%s\n", v)
	return nil
}

// StartConnection connects, records the start of activity and handles snapshot
// records until abort is closed. When the server cannot be reached the returned
// Connection is disconnected; the failure is logged, not returned.
func StartConnection(opt Options, activity *ActivityMessage, abort <-chan struct{}) *Connection {
	db := createConnection(opt)
	db.activity = activity
	if !db.IsConnected() {
		db.logger.Printf("activity database unavailable at %s: %v", opt.Addr, db.Err())
		return db
	}
	db.logActivity()
	db.Add(1)
	go db.handleConnection(abort)
	return db
}

// DummyConnection returns a Connection that drops everything.
func DummyConnection() *Connection {
	return &Connection{logger: log.Default()}
}

func createConnection(opt Options) *Connection {
	db := &Connection{logger: opt.Logger}
	if db.logger == nil {
		db.logger = log.Default()
	}
	if opt.DialTimeout <= 0 {
		opt.DialTimeout = 5 * time.Second
	}
	auth := clickhouse.Auth{
		Database: databaseName,
		Username: os.Getenv("SIGNALS_DB_USER"),
		Password: os.Getenv("SIGNALS_DB_PASSWORD"),
	}
	client := clickhouse.ClientInfo{
		Products: []struct {
			Name    string
			Version string
		}{
			{Name: "signals_reader", Version: "unknown"},
		},
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr:        []string{opt.Addr},
		Auth:        auth,
		ClientInfo:  client,
		DialTimeout: opt.DialTimeout,
	})
	if err != nil {
		db.setErr(err)
		return db
	}

	ctx, cancel := context.WithTimeout(context.Background(), opt.DialTimeout)
	defer cancel()
	if err = conn.Ping(ctx); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			db.logger.Printf("Exception [%d] %s \n%s\n", exception.Code, exception.Message, exception.StackTrace)
		}
		conn.Close()
		db.setErr(err)
		return db
	}
	db.conn = conn
	db.snapshots = make(chan *SnapshotMessage, 64)
	return db
}

func (db *Connection) logActivity() {
	if !db.IsConnected() || db.activity == nil {
		return
	}
	ctx := context.Background()
	const nowait = false
	ae := db.activity
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO sampleractivity VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		ae.ID, ae.Hostname, ae.Githash, ae.Version, ae.GoVersion, ae.CPUs,
		ae.Capacity, ae.Tick.Milliseconds(), ae.Schedule,
		ae.Start.Format(timeFormat), ae.End.Format(timeFormat),
	); err != nil {
		db.logger.Println("Error raised on AsyncInsert into sampleractivity ", err)
		db.setErr(err)
	}
}

func (db *Connection) handleConnection(abort <-chan struct{}) {
	defer db.Done()
	for {
		select {
		case <-abort:
			db.drain()
			db.disconnect()
			return
		case msg := <-db.snapshots:
			db.handleSnapshotMessage(msg)
		}
	}
}

func (db *Connection) drain() {
	for {
		select {
		case msg := <-db.snapshots:
			db.handleSnapshotMessage(msg)
		default:
			return
		}
	}
}

func (db *Connection) disconnect() {
	if db.IsConnected() {
		db.activity.End = time.Now()
		db.logActivity()
	}
	if db.conn != nil {
		db.conn.Close()
	}
}

// RecordSnapshot queues msg for the snapshots table. It never blocks: when the
// queue is full the record is dropped and logged.
func (db *Connection) RecordSnapshot(msg *SnapshotMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	select {
	case db.snapshots <- msg:
	default:
		db.logger.Printf("snapshot record for session %s dropped: database queue full", msg.SessionID)
	}
}

func (db *Connection) handleSnapshotMessage(m *SnapshotMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO snapshots VALUES (?, ?, ?, ?, ?, ?)`, nowait,
		m.SessionID, db.activity.ID, m.Filled, m.BitsA, m.BitsB, m.Served.Format(timeFormat),
	); err != nil {
		db.logger.Println("Error raised on AsyncInsert into snapshots ", err)
		db.setErr(err)
	}
}
