// Server connection handling: the accept loop, one reader goroutine and
// one dispatch goroutine per connection, and the verb-dispatch switch
// that turns a parsed command into an Engine call and a wire reply.
//
// §9's native-concurrency alternative is realized here literally: no
// reactor, one reader goroutine blocked on Read per connection. It fully
// parses each request (including a put's body) off the wire and hands it
// to the connection's second, dispatch goroutine over a channel; closing
// that channel on read error or EOF is itself
// the hang-up signal, replacing the reactor's readable-with-zero-bytes
// event.
package engine

import (
	"bufio"
	"errors"
	"io"
	"net"

	"github.com/rmkadzi/workq/internal/conn"
	"github.com/rmkadzi/workq/internal/job"
	"github.com/rmkadzi/workq/internal/protocol"
)

// request is one fully-parsed line (and, for put, its body) read off a
// connection, or a parse/framing error to report back to the client.
type request struct {
	cmd   *protocol.Command
	body  []byte // put only: raw bytes as declared by Bytes, trailer included
	reply string // pre-formatted reply for a parse-time error
	fatal bool   // true if the connection must close after this reply
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed during shutdown), handling each on its own pair
// of goroutines.
func (e *Engine) Serve(ln net.Listener) error {
	for {
		raw, err := ln.Accept()
		if err != nil {
			return err
		}
		go e.handleConn(raw)
	}
}

func (e *Engine) handleConn(raw net.Conn) {
	if e.maxConnections > 0 && e.Conns.Count() >= e.maxConnections {
		io.WriteString(raw, errServerFull.Reply())
		raw.Close()
		return
	}

	c := conn.New(e.Conns.NextSeq(), raw)
	e.Conns.Register(c)
	if e.log != nil {
		e.log.Info("connection opened", "seq", c.Seq, "addr", c.Addr)
	}

	defer func() {
		raw.Close()
		e.CloseConn(c)
		if e.log != nil {
			e.log.Info("connection closed", "seq", c.Seq, "addr", c.Addr)
		}
	}()

	reqs := make(chan *request, 1)
	go e.readLoop(c, reqs)

	var pending *request
	for {
		var req *request
		if pending != nil {
			req, pending = pending, nil
		} else {
			var ok bool
			req, ok = <-reqs
			if !ok {
				return
			}
		}

		if req.reply != "" {
			if _, err := io.WriteString(raw, req.reply); err != nil {
				return
			}
			if req.fatal {
				return
			}
			continue
		}

		if !e.dispatch(c, req, reqs, &pending) {
			return
		}
	}
}

// readLoop owns the connection's bufio.Reader exclusively: it parses one
// full request at a time (reading a put's body too) and sends it on
// reqs, closing reqs on any read error including a clean EOF.
func (e *Engine) readLoop(c *conn.Conn, reqs chan<- *request) {
	defer close(reqs)
	br := bufio.NewReaderSize(c.Raw, protocol.MaxLineSize)

	for {
		line, err := protocol.ReadLine(br)
		if err != nil {
			if errors.Is(err, protocol.ErrLineTooLong) {
				reqs <- &request{reply: protocol.ErrBadCommandLine, fatal: true}
			}
			return
		}

		cmd, perr := protocol.Parse(line)
		if perr != nil {
			reqs <- &request{reply: replyForParseError(perr)}
			continue
		}

		if cmd.Verb != protocol.VerbPut {
			reqs <- &request{cmd: cmd}
			continue
		}

		if cmd.Bytes > job.JobDataSizeLimit {
			if err := discardBody(br, cmd.Bytes+2); err != nil {
				return
			}
			reqs <- &request{reply: protocol.ErrJobTooBig}
			continue
		}

		body := make([]byte, cmd.Bytes+2)
		if _, err := io.ReadFull(br, body); err != nil {
			return
		}
		if body[len(body)-2] != '\r' || body[len(body)-1] != '\n' {
			reqs <- &request{reply: protocol.ErrBadTrailer}
			continue
		}
		reqs <- &request{cmd: cmd, body: body}
	}
}

// discardBody reads and throws away exactly n bytes without allocating a
// buffer sized to the client's declared length — a job-too-big put must
// not be able to force a multi-gigabyte allocation before it's rejected.
func discardBody(br *bufio.Reader, n uint32) error {
	_, err := io.CopyN(io.Discard, br, int64(n))
	return err
}

func replyForParseError(err error) string {
	if errors.Is(err, protocol.ErrUnknownCommand) {
		return protocol.ReplyUnknownCommand
	}
	return protocol.ErrBadCommandLine
}

// dispatch executes one parsed request against the engine and writes
// its reply. It returns false if the connection must close.
func (e *Engine) dispatch(c *conn.Conn, req *request, reqs <-chan *request, pending **request) bool {
	raw := c.Raw
	cmd := req.cmd

	switch cmd.Verb {
	case protocol.VerbPut:
		c.IsProducer.Store(true)
		j, perr := e.Put(cmd.Pri, cmd.Delay, cmd.TTR, req.body)
		if perr != nil {
			_, err := io.WriteString(raw, perr.Reply())
			return err == nil
		}
		reply := protocol.Inserted(j.ID)
		if j.State == job.StateBuried {
			reply = protocol.ReplyBuried
		}
		_, err := io.WriteString(raw, reply)
		return err == nil

	case protocol.VerbReserve:
		return e.dispatchReserve(c, reqs, pending)

	case protocol.VerbDelete:
		if e.Delete(c, cmd.ID) {
			_, err := io.WriteString(raw, protocol.ReplyDeleted)
			return err == nil
		}
		_, err := io.WriteString(raw, protocol.ReplyNotFound)
		return err == nil

	case protocol.VerbRelease:
		released, buried, found := e.Release(c, cmd.ID, cmd.Pri, cmd.Delay)
		var reply string
		switch {
		case !found:
			reply = protocol.ReplyNotFound
		case buried:
			reply = protocol.ReplyBuried
		case released:
			reply = protocol.ReplyReleased
		}
		_, err := io.WriteString(raw, reply)
		return err == nil

	case protocol.VerbBury:
		if e.Bury(c, cmd.ID, cmd.Pri) {
			_, err := io.WriteString(raw, protocol.ReplyBuried)
			return err == nil
		}
		_, err := io.WriteString(raw, protocol.ReplyNotFound)
		return err == nil

	case protocol.VerbKick:
		n := e.Kick(cmd.N)
		_, err := io.WriteString(raw, protocol.Kicked(n))
		return err == nil

	case protocol.VerbPeek:
		return e.writePeek(raw, e.peekBuriedOrDelayed())

	case protocol.VerbPeekID:
		return e.writePeek(raw, e.PeekID(cmd.ID))

	case protocol.VerbStats:
		e.Metrics.StatsCt.Add(1)
		body := e.GlobalStats()
		return e.writeBody(raw, protocol.OK(len(body)), body)

	case protocol.VerbStatsID:
		e.Metrics.StatsCt.Add(1)
		body, ok := e.JobStats(cmd.ID)
		if !ok {
			_, err := io.WriteString(raw, protocol.ReplyNotFound)
			return err == nil
		}
		return e.writeBody(raw, protocol.OK(len(body)), body)

	default:
		_, err := io.WriteString(raw, protocol.ReplyUnknownCommand)
		return err == nil
	}
}

// dispatchReserve parks c on the wait queue and blocks this connection's
// goroutine until a job arrives or the connection hangs up, stashing
// the first request that arrives on reqs in the meantime (a client is
// allowed to pipeline past a reserve; that request is processed once the
// reserve resolves). Once a request is stashed, reqs is not read again
// until the reserve resolves, so a hang-up after that point is noticed
// only afterwards.
func (e *Engine) dispatchReserve(c *conn.Conn, reqs <-chan *request, pending **request) bool {
	ch := e.BeginReserve(c)
	in := reqs
	for {
		select {
		case j := <-ch:
			if j == nil {
				return false
			}
			_, err := io.WriteString(c.Raw, protocol.Reserved(j.ID, j.Pri, j.VisibleBodySize()))
			if err != nil {
				return false
			}
			_, err = c.Raw.Write(j.Body)
			return err == nil

		case r, ok := <-in:
			if !ok {
				e.CancelReserve(c)
				return false
			}
			*pending = r
			in = nil
			// Keep waiting: a stashed request doesn't cancel the reserve.
			// It's processed only after ch resolves, so loop back to the
			// select without returning to the caller. To avoid losing a
			// second incoming request while we wait, only one slot is
			// kept: a client pipelining more than one command past an
			// outstanding reserve is unusual and the extra requests queue
			// up on the channel's own buffer/backpressure instead.
		}
	}
}

func (e *Engine) writePeek(raw net.Conn, j *job.Job) bool {
	if j == nil {
		_, err := io.WriteString(raw, protocol.ReplyNotFound)
		return err == nil
	}
	e.Metrics.PeekCt.Add(1)
	_, err := io.WriteString(raw, protocol.Found(j.ID, j.Pri, j.VisibleBodySize()))
	if err != nil {
		return false
	}
	_, err = raw.Write(j.Body)
	return err == nil
}

func (e *Engine) writeBody(raw net.Conn, header, body string) bool {
	if _, err := io.WriteString(raw, header); err != nil {
		return false
	}
	_, err := io.WriteString(raw, body)
	return err == nil
}
