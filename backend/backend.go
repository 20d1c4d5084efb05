package backend

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/brutella/hc/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// we keep at most maxHistory volume changes
const maxHistory = 1000

// VolumeChange is a row of the history table.
type VolumeChange struct {
	ID        int64  `json:"id"`
	DateTime  string `json:"datetime"`
	ChimeID   string `json:"chime_id"`
	ChimeName string `json:"chime_name"`
	Volume    int    `json:"volume"`
}

type Backend struct {
	dbFile   string
	inetAddr string
	dbHandle *sql.DB
	server   *http.Server
	mutex    sync.Mutex
}

func InitBackend(dbFile string, inetAddr string) *Backend {
	return &Backend{
		dbFile:   dbFile,
		inetAddr: inetAddr,
	}
}

func (b *Backend) createSchema() error {
	createHistoryTableSQL := `
CREATE TABLE IF NOT EXISTS chime_volume_history (
"id" integer NOT NULL PRIMARY KEY AUTOINCREMENT,
"datetime" DATE DEFAULT (datetime('now')),
"chime_id" TEXT NOT NULL,
"chime_name" TEXT NOT NULL,
"volume" integer NOT NULL
);`

	log.Debug.Println("Creating chime_volume_history table")
	if _, err := b.dbHandle.Exec(createHistoryTableSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Open opens the database, creating the file and the schema when missing.
func (b *Backend) Open() error {
	// check if the database exists otherwise create it
	if _, err := os.Stat(b.dbFile); os.IsNotExist(err) {
		f, err := os.Create(b.dbFile)
		if err != nil {
			return err
		}
		f.Close()
		log.Info.Println("Database created:", b.dbFile)
	}

	db, err := sql.Open("sqlite3", b.dbFile)
	if err != nil {
		return err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	b.mutex.Lock()
	b.dbHandle = db
	b.mutex.Unlock()

	return b.createSchema()
}

// Close closes the database.
func (b *Backend) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.dbHandle == nil {
		return nil
	}
	err := b.dbHandle.Close()
	b.dbHandle = nil
	return err
}

// InsertVolumeChange appends a volume change and drops the oldest rows
// beyond maxHistory.
func (b *Backend) InsertVolumeChange(chimeID, name string, volume int) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.dbHandle == nil {
		return fmt.Errorf("database %s is not open", b.dbFile)
	}

	tx, err := b.dbHandle.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := `INSERT INTO chime_volume_history(chime_id, chime_name, volume) VALUES (?, ?, ?)`
	if _, err := tx.Exec(q, chimeID, name, volume); err != nil {
		return err
	}

	q = `
DELETE FROM chime_volume_history WHERE id IN
(SELECT id FROM chime_volume_history ORDER BY id DESC LIMIT -1 OFFSET ?)
`
	if _, err := tx.Exec(q, maxHistory); err != nil {
		return err
	}

	return tx.Commit()
}

// History returns the newest limit changes, newest first.
func (b *Backend) History(limit int) ([]VolumeChange, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.dbHandle == nil {
		return nil, fmt.Errorf("database %s is not open", b.dbFile)
	}
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}

	rows, err := b.dbHandle.Query(
		`SELECT id, datetime, chime_id, chime_name, volume FROM chime_volume_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]VolumeChange, 0)
	for rows.Next() {
		var c VolumeChange
		if err := rows.Scan(&c.ID, &c.DateTime, &c.ChimeID, &c.ChimeName, &c.Volume); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (b *Backend) getHistory(w http.ResponseWriter, r *http.Request) {
	log.Debug.Println("WebService: getHistory requested")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	changes, err := b.History(limit)
	if err != nil {
		log.Info.Println(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(changes)
}

var homepage = template.Must(template.New("home").Parse(`
<html>
<head>
<title>Chimes</title>
<style>
th, td {
  padding: 15px;
  border-spacing: 5px;
  text-align: center;
}
</style>
</head>
<body>
<table style="width:800;margin-left:auto;margin-right:auto;">
<tr>
<th>Date and Time</th>
<th>Chime</th>
<th>Volume</th>
</tr>
{{range .}}<tr><td>{{.DateTime}}</td><td>{{.ChimeName}}</td><td>{{.Volume}}</td></tr>
{{end}}</table>
</body>
</html>
`))

func (b *Backend) getHome(w http.ResponseWriter, r *http.Request) {
	log.Debug.Println("WebService: getHome requested")

	changes, err := b.History(100)
	if err != nil {
		log.Info.Println(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := homepage.Execute(w, changes); err != nil {
		log.Info.Println(err)
	}
}

// Handler returns the routes of the web service.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", b.getHome)
	mux.HandleFunc("/history", b.getHistory)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// StartWebService serves the history and the metrics until StopWebService.
// The database must be open.
func (b *Backend) StartWebService() error {
	b.mutex.Lock()
	b.server = &http.Server{Addr: b.inetAddr, Handler: b.Handler()}
	srv := b.server
	b.mutex.Unlock()

	log.Info.Println("Backend is listening at " + b.inetAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (b *Backend) StopWebService() {
	b.mutex.Lock()
	srv := b.server
	b.mutex.Unlock()

	if srv != nil {
		srv.Close()
	}
	if err := b.Close(); err != nil {
		log.Info.Println(err)
	}
}
