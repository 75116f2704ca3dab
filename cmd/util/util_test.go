package util

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("Line exceeds %d characters: %q", Wrap, line)
		}
	}
	if WrapString("short text") != "short text" {
		t.Errorf("Short text must not be wrapped")
	}
}

func TestHashString(t *testing.T) {
	if HashString("node-1") != HashString("node-1") {
		t.Errorf("Expected the same id for the same name")
	}
	if HashString("node-1") == HashString("node-2") {
		t.Errorf("Expected different ids for different names")
	}
	// FNV-1a offset basis
	if HashString("") != 14695981039346656037 {
		t.Errorf("Unexpected hash of the empty string: %d", HashString(""))
	}
}

func TestSelection(t *testing.T) {
	defer viper.Reset()

	for _, name := range []string{"binary", "json", "gob"} {
		viper.Set("serializer", name)
		if _, err := GetSerializer(); err != nil {
			t.Errorf("Serializer %s: %v", name, err)
		}
	}
	viper.Set("serializer", "xml")
	if _, err := GetSerializer(); err == nil {
		t.Errorf("Expected error for unknown serializer")
	}

	for _, name := range []string{"tcp", "unix"} {
		viper.Set("transport", name)
		if _, err := GetClientTransport(); err != nil {
			t.Errorf("Client transport %s: %v", name, err)
		}
		if _, err := GetServerTransport(); err != nil {
			t.Errorf("Server transport %s: %v", name, err)
		}
	}
	viper.Set("transport", "http")
	if _, err := GetClientTransport(); err == nil {
		t.Errorf("Expected error for unknown transport")
	}
}

func TestGetClientConfig(t *testing.T) {
	defer viper.Reset()

	viper.Set("endpoint", "localhost:9000")
	viper.Set("initial-buffer", 4)
	viper.Set("max-frame", 64)
	viper.Set("chunk-size", 8)
	viper.Set("put-returns-previous", true)

	config := GetClientConfig()
	if config.Endpoint != "localhost:9000" || config.InitialBufferBytes != 4096 ||
		config.MaxFrameBytes != 64*1024 || config.ChunkBytes != 8*1024 || !config.PutReturnsPrevious {
		t.Errorf("Unexpected config %+v", config)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Expected valid config: %v", err)
	}
}
