// The Redis port is pomelo's front door: a caching proxy speaking the Redis protocol in front of a
// slow backing source. GET reads through the cache, DBSIZE and FLUSHALL map to the cache's size and
// clear operations, KEYS lists cached keys matching a glob pattern and INFO dumps the pomelo
// metric families.

package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/nobletooth/pomelo/pkg/cache"
	"github.com/nobletooth/pomelo/pkg/scan"
	"github.com/nobletooth/pomelo/pkg/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/redcon"
	"google.golang.org/protobuf/encoding/prototext"
)

var address = flag.String("address", ":6380", "The ip:port to listen on for Redis protocol.")

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string
	args    []string
}

// redisOutput conforms to a real Redis server output on non pub / sub commands.
type redisOutput struct {
	closeConnection bool     // Closes the connection if true.
	writeNil        bool     // Writes a nil value if true.
	err             *string  // Error to return if set.
	writeInt        *int     // Writes an integer value if set.
	writeBulk       []byte   // Writes a bulk string if set.
	writeArray      []string // Writes an array of bulk strings if set.
	writeString     string   // Writes a simple string value if set.
}

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{writeString: msg, closeConnection: true}
}

func writeRedisNil() redisOutput {
	return redisOutput{writeNil: true}
}

func writeRedisInt(i int) redisOutput {
	return redisOutput{writeInt: &i}
}

func writeRedisBulk(b []byte) redisOutput {
	return redisOutput{writeBulk: b}
}

func writeRedisArray(values []string) redisOutput {
	return redisOutput{writeArray: values}
}

func writeRedisString(s string) redisOutput {
	return redisOutput{writeString: s}
}

func writeRedisError(err error) redisOutput {
	msg := "ERR " + err.Error()
	return redisOutput{err: &msg}
}

type redisHandler struct {
	ctx   context.Context // Cancelled when the server shuts down; bounds in-flight retrievals.
	cache cache.Layer[string, []byte]
}

// newRedisHandler creates a new redisHandler.
func newRedisHandler(ctx context.Context, cacheLayer cache.Layer[string, []byte]) (*redisHandler, error) {
	if cacheLayer == nil {
		return nil, errors.New("expected a non-nil cache layer")
	}
	return &redisHandler{ctx: ctx, cache: cacheLayer}, nil
}

func (rh *redisHandler) handle(cmd redisCommand) redisOutput {
	switch cmd.command {
	case "PING":
		return writeRedisString("PONG")
	case "QUIT":
		return closeRedisConnection("OK")
	case "GET":
		if len(cmd.args) != 1 {
			return writeRedisError(errors.New("wrong number of arguments for 'GET' command"))
		}
		key := cmd.args[0]
		if value, err := rh.cache.Get(rh.ctx, key); errors.Is(err, source.ErrKeyNotFound) {
			return writeRedisNil()
		} else if err != nil {
			return writeRedisError(err)
		} else {
			return writeRedisBulk(value)
		}
	case "DBSIZE":
		return writeRedisInt(rh.cache.Len())
	case "FLUSHALL":
		rh.cache.Purge()
		return writeRedisString("OK")
	case "KEYS":
		if len(cmd.args) != 1 {
			return writeRedisError(errors.New("wrong number of arguments for 'KEYS' command"))
		}
		matched := slices.Collect(scan.MatchGlob(cmd.args[0], slices.Values(rh.cache.Keys())))
		if matched == nil { // Keep the reply an empty array, not a nil bulk.
			matched = []string{}
		}
		return writeRedisArray(matched)
	case "INFO":
		report, err := metricsReport()
		if err != nil {
			return writeRedisError(err)
		}
		return writeRedisBulk([]byte(report))
	default:
		return writeRedisError(fmt.Errorf("unknown command '%s'", cmd.command))
	}
}

// metricsReport renders every gathered metric family in prototext form, one family per line.
func metricsReport() (string, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to gather metrics: %w", err)
	}
	var report strings.Builder
	for _, family := range families {
		report.WriteString(prototext.MarshalOptions{Multiline: false}.Format(family))
		report.WriteByte('\n')
	}
	return report.String(), nil
}

// RunRedisServer starts a Redis protocol server that reads through the provided cache layer.
func RunRedisServer(ctx context.Context, cacheLayer cache.Layer[string, []byte]) error {
	if *address == "" {
		return errors.New("expected a non-empty --address flag")
	}

	redisHandler, err := newRedisHandler(ctx, cacheLayer)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, *address,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			// Convert redcon.Command to redisCommand.
			command := redisCommand{
				command: strings.ToUpper(string(cmd.Args[0])),
				args:    make([]string, len(cmd.Args)-1),
			}
			for i := 1; i < len(cmd.Args); i++ {
				command.args[i-1] = string(cmd.Args[i])
			}
			output := redisHandler.handle(command)
			switch {
			case output.closeConnection:
				conn.WriteString(output.writeString)
				if err := conn.Close(); err != nil {
					slog.Error("failed to close connection", "error", err)
				}
			case output.err != nil:
				conn.WriteError(*output.err)
			case output.writeNil:
				conn.WriteNull()
			case output.writeInt != nil:
				conn.WriteInt(*output.writeInt)
			case output.writeArray != nil:
				conn.WriteArray(len(output.writeArray))
				for _, value := range output.writeArray {
					conn.WriteBulkString(value)
				}
			case output.writeBulk != nil:
				conn.WriteBulk(output.writeBulk)
			default:
				conn.WriteString(output.writeString)
			}
		},
		/*accept*/ func(conn redcon.Conn) bool {
			return true // Accept all connections.
		},
		/*close*/ func(conn redcon.Conn, err error) {
		})

	serverErrSignal := make(chan error, 1)
	go func() {
		if err := redisServer.ListenAndServe(); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()

	select {
	case <-ctx.Done():
		if err := redisServer.Close(); err != nil {
			return fmt.Errorf("failed to close pomelo: %w", err)
		}
	case err := <-serverErrSignal:
		return fmt.Errorf("redis server stopped unexpectedly: %w", err)
	}

	return nil // Exited with no errors.
}
