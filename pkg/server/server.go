// Package server is the network shell: a line-oriented TCP listener where
// each connection is one client session. A client sends SQL terminated by
// ';', the server parses it, hands it to the Transaction Coordinator, and
// writes back a result block or an error line.
package server

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bobboyms/reldb/pkg/errors"
	"github.com/bobboyms/reldb/pkg/executor"
	"github.com/bobboyms/reldb/pkg/sqlfront"
	"github.com/bobboyms/reldb/pkg/tree"
	"github.com/bobboyms/reldb/pkg/txn"
)

// promptAutoCommit/promptInTransaction are the two client-visible prompts.
const (
	promptAutoCommit    = "dbms> "
	promptInTransaction = "dbms*> "
)

// Coordinator is the slice of txn.Coordinator the server drives. Satisfied
// by *txn.Coordinator without an explicit assertion.
type Coordinator interface {
	Execute(clientID string, root *tree.Node) (executor.Result, error)
	Abort(clientID string) error
	InTransaction(clientID string) bool
}

// Server accepts connections on a TCP address and serves each one with the
// line protocol described above, routing every statement through coord.
type Server struct {
	addr   string
	coord  Coordinator
	logger zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New opens a Server bound to addr (e.g. ":5433") with a disabled logger;
// call WithLogger to attach one.
func New(addr string, coord Coordinator) *Server {
	return &Server{
		addr:   addr,
		coord:  coord,
		logger: zerolog.Nop(),
	}
}

// WithLogger attaches a sub-logger the server uses for connection and
// statement-failure logging, returning s for chaining.
func (s *Server) WithLogger(logger zerolog.Logger) *Server {
	s.logger = logger.With().Str("component", "server").Logger()
	return s
}

// ListenAndServe binds addr and serves connections until Shutdown is
// called or accept fails. It blocks; run it in its own goroutine when a
// caller needs to keep going (cmd/reldb's serve subcommand does).
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			shuttingDown := s.listener == nil
			s.mu.Unlock()
			if shuttingDown {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Shutdown closes the listener, so no new connection is accepted, and then
// waits until every open connection has ended, giving an orderly shutdown
// (exit code 0 per the protocol's exit-code contract). It does not close
// open connections itself: each one ends when its client disconnects.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	clientID := txn.NewClientID()
	log := s.logger.With().Str("client_id", clientID).Logger()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("connection opened")
	defer func() {
		conn.Close()
		log.Info().Msg("connection closed")
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	var pending strings.Builder
	s.writePrompt(writer, clientID)

	for {
		line, err := reader.ReadString('\n')
		pending.WriteString(line)

		for {
			stmt, complete := extractStatement(&pending)
			if !complete {
				break
			}
			s.runStatement(writer, clientID, stmt, log)
		}

		if err != nil {
			return
		}
	}
}

// runStatement executes one already-extracted statement (possibly empty,
// for a bare ';') and writes its result block followed by the next prompt.
func (s *Server) runStatement(writer *bufio.Writer, clientID, stmt string, log zerolog.Logger) {
	if stmt == "" {
		s.writePrompt(writer, clientID)
		return
	}

	if strings.EqualFold(stmt, "ABORT") {
		if err := s.coord.Abort(clientID); err != nil {
			s.writeError(writer, err, log)
		} else {
			fmt.Fprintln(writer, "OK")
		}
		fmt.Fprintln(writer)
		s.writePrompt(writer, clientID)
		return
	}

	root, err := sqlfront.Parse(stmt)
	if err != nil {
		s.writeError(writer, err, log)
		fmt.Fprintln(writer)
		s.writePrompt(writer, clientID)
		return
	}

	res, err := s.coord.Execute(clientID, root)
	if err != nil {
		s.writeError(writer, err, log)
		fmt.Fprintln(writer)
		s.writePrompt(writer, clientID)
		return
	}
	if root.Type == tree.BEGIN_TRANSACTION || root.Type == tree.COMMIT {
		fmt.Fprintln(writer, "OK")
	} else {
		writeResult(writer, res, isQuery(root))
	}
	fmt.Fprintln(writer)
	s.writePrompt(writer, clientID)
}

// extractStatement pulls one semicolon-terminated statement out of pending,
// leaving anything after the ';' buffered for the next call. The second
// return is false until a full statement (or a bare ';') has arrived.
func extractStatement(pending *strings.Builder) (string, bool) {
	buf := pending.String()
	idx := strings.IndexByte(buf, ';')
	if idx < 0 {
		return "", false
	}
	stmt := strings.TrimSpace(buf[:idx])
	rest := buf[idx+1:]
	pending.Reset()
	pending.WriteString(rest)
	return stmt, true
}

func (s *Server) writePrompt(w *bufio.Writer, clientID string) {
	if s.coord.InTransaction(clientID) {
		fmt.Fprint(w, promptInTransaction)
	} else {
		fmt.Fprint(w, promptAutoCommit)
	}
	w.Flush()
}

func (s *Server) writeError(w *bufio.Writer, err error, log zerolog.Logger) {
	kind := "unknown"
	if kinded, ok := err.(errors.Kinded); ok {
		kind = kinded.Kind().String()
	}
	log.Warn().Str("kind", kind).Err(err).Msg("statement failed")
	fmt.Fprintf(w, "ERROR %s: %s\n", kind, err.Error())
}

// isQuery tells a SELECT plan (rows block) apart from DML/DDL (row-count
// block), mirroring the Run dispatch in pkg/executor — a zero-row SELECT
// still returns a rows block, not an affected-count one.
func isQuery(root *tree.Node) bool {
	switch root.Type {
	case tree.RELATION, tree.ALIAS, tree.PROJECT, tree.FILTER, tree.SORT, tree.LIMIT, tree.JOIN:
		return true
	default:
		return false
	}
}

func writeResult(w *bufio.Writer, res executor.Result, query bool) {
	if !query {
		fmt.Fprintf(w, "OK %d row(s) affected\n", res.Affected)
		return
	}
	fmt.Fprintf(w, "OK %d row(s)\n", len(res.Rows))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, e := range row {
			v, _ := row.Get(e.Key)
			cells[i] = v.String()
		}
		fmt.Fprintln(w, strings.Join(cells, "|"))
	}
}
