package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/smap/rpc/common"
	"github.com/ValentinKolb/smap/rpc/serializer"
	"github.com/ValentinKolb/smap/rpc/transport"
	"github.com/ValentinKolb/smap/rpc/transport/tcp"
	"github.com/ValentinKolb/smap/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. SMAP_TIMEOUT)
	EnvPrefix = "smap"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// HashString maps a readable name (e.g. a replica name like "node-1") to a numeric ID (FNV-1a)
func HashString(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64)
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

// InitConfig loads .env files and lets viper read SMAP_* environment variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds the connection flags of a client to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig("localhost:8080")
	flags := cmd.PersistentFlags()

	flags.String("endpoint", defaults.Endpoint, WrapString("The address of the smap server (host:port, or a socket path for the unix transport)"))
	flags.Uint64("map", 1, WrapString("ID of the map to work on"))
	flags.Int("timeout", defaults.TimeoutSecond, WrapString("Timeout in seconds of a single request (0 disables the timeout)"))
	flags.Int("connect-timeout", defaults.ConnectTimeoutSecond, WrapString("How long to retry connecting to a server that is not reachable yet (in seconds)"))
	flags.Int("retries", defaults.RetryCount, WrapString("How many times a request is resent on a new connection if the connection was lost"))

	flags.Int("initial-buffer", defaults.InitialBufferBytes/1024, WrapString("Initial size of the read and write buffers (in KB)"))
	flags.Int("max-frame", defaults.MaxFrameBytes/1024, WrapString("Largest frame the client sends or accepts (in KB)"))
	flags.Int("chunk-size", defaults.ChunkBytes/1024, WrapString("Payload budget of one bulk transfer chunk (in KB)"))

	flags.Bool("put-returns-previous", defaults.PutReturnsPrevious, WrapString("Ask the server for the previous value on put"))
	flags.Bool("remove-returns-previous", defaults.RemoveReturnsPrevious, WrapString("Ask the server for the previous value on remove"))

	SetupSocketFlags(cmd)
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		Endpoint:              viper.GetString("endpoint"),
		TimeoutSecond:         viper.GetInt("timeout"),
		ConnectTimeoutSecond:  viper.GetInt("connect-timeout"),
		RetryCount:            viper.GetInt("retries"),
		InitialBufferBytes:    viper.GetInt("initial-buffer") * 1024,
		MaxFrameBytes:         viper.GetInt("max-frame") * 1024,
		ChunkBytes:            viper.GetInt("chunk-size") * 1024,
		PutReturnsPrevious:    viper.GetBool("put-returns-previous"),
		RemoveReturnsPrevious: viper.GetBool("remove-returns-previous"),
		Transport:             GetSocketConfig(),
	}
}

// GetMapID retrieves the configured map ID
func GetMapID() uint64 {
	return viper.GetUint64("map")
}

// --------------------------------------------------------------------------
// Shared settings
// --------------------------------------------------------------------------

// SetupSocketFlags adds the socket options shared by client and server
func SetupSocketFlags(cmd *cobra.Command) {
	defaults := common.DefaultTransportConfig()
	flags := cmd.PersistentFlags()

	flags.Int("socket-write-buffer", 0, WrapString("SO_SNDBUF of every connection (in KB, 0 keeps the OS default)"))
	flags.Int("socket-read-buffer", 0, WrapString("SO_RCVBUF of every connection (in KB, 0 keeps the OS default)"))
	flags.Bool("tcp-nodelay", defaults.TCPNoDelay, WrapString("Whether to enable TCP_NODELAY (tcp transport only)"))
	flags.Int("tcp-keepalive", defaults.TCPKeepAliveSec, WrapString("The keepalive interval (in seconds, tcp transport only)"))
	flags.Int("tcp-linger", defaults.TCPLingerSec, WrapString("The linger time (in seconds, negative keeps the OS default, tcp transport only)"))
}

// GetSocketConfig reads the socket options from viper
func GetSocketConfig() common.TransportConfig {
	return common.TransportConfig{
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("tcp-linger"),
		WriteBufferSize: viper.GetInt("socket-write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("socket-read-buffer") * 1024,
	}
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch name := viper.GetString("serializer"); name {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", name)
	}
}

// GetClientTransport creates a client transport based on configuration
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch name := viper.GetString("transport"); name {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", name)
	}
}

// GetServerTransport creates a server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch name := viper.GetString("transport"); name {
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", name)
	}
}
