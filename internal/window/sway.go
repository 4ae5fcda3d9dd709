package window

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bnema/magickey/internal/logger"
)

const (
	magic      = "i3-ipc"
	headerSize = len(magic) + 4 + 4
)

// sway IPC message types (see github.com/swaywm/sway IPC documentation).
const (
	msgTypeSubscribe = 2
	msgTypeGetTree   = 4
)

// The high bit of the reply type marks an asynchronous event, per the
// i3/sway IPC protocol.
const eventTypeMask = uint32(1) << 31

// SocketPath resolves the sway IPC socket: SWAYSOCK if set, else a glob
// under /run/user/<uid>/sway-ipc.<uid>.*.sock, per spec.md's
// "Compositor IPC" interface.
func SocketPath(uid int) (string, error) {
	if p := os.Getenv("SWAYSOCK"); p != "" {
		return p, nil
	}

	pattern := filepath.Join(
		fmt.Sprintf("/run/user/%d", uid),
		fmt.Sprintf("sway-ipc.%d.*.sock", uid),
	)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("glob sway socket: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no sway IPC socket found matching %s", pattern)
	}
	return matches[0], nil
}

// Client is a connection to the sway/i3 IPC socket.
type Client struct {
	conn net.Conn
}

// Dial connects to the sway IPC socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial sway socket %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) sendMessage(msgType uint32, payload []byte) error {
	header := make([]byte, headerSize)
	copy(header, magic)
	binary.LittleEndian.PutUint32(header[len(magic):], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[len(magic)+4:], msgType)

	if _, err := c.conn.Write(header); err != nil {
		return err
	}
	_, err := c.conn.Write(payload)
	return err
}

func (c *Client) readMessage() (msgType uint32, payload []byte, err error) {
	header := make([]byte, headerSize)
	if _, err = readFull(c.conn, header); err != nil {
		return 0, nil, err
	}
	if string(header[:len(magic)]) != magic {
		return 0, nil, fmt.Errorf("bad sway IPC magic %q", header[:len(magic)])
	}

	length := binary.LittleEndian.Uint32(header[len(magic):])
	msgType = binary.LittleEndian.Uint32(header[len(magic)+4:])

	payload = make([]byte, length)
	if _, err = readFull(c.conn, payload); err != nil {
		return 0, nil, err
	}
	return msgType, payload, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// treeNode is the subset of sway's GET_TREE reply this client needs.
type treeNode struct {
	Name              string `json:"name"`
	Focused           bool   `json:"focused"`
	AppID             string `json:"app_id"`
	WindowProperties  *struct {
		Class string `json:"class"`
	} `json:"window_properties"`
	Nodes       []treeNode `json:"nodes"`
	FloatingNodes []treeNode `json:"floating_nodes"`
}

func (n *treeNode) findFocused() (Window, bool) {
	if n.Focused {
		class := n.AppID
		if class == "" && n.WindowProperties != nil {
			class = n.WindowProperties.Class
		}
		return Window{Class: class, Title: n.Name}, true
	}
	for i := range n.Nodes {
		if w, ok := n.Nodes[i].findFocused(); ok {
			return w, true
		}
	}
	for i := range n.FloatingNodes {
		if w, ok := n.FloatingNodes[i].findFocused(); ok {
			return w, true
		}
	}
	return Window{}, false
}

// GetFocusedWindow issues a one-shot GET_TREE query and returns the
// currently focused window, used to seed the Context before the
// subscription's first event arrives.
func (c *Client) GetFocusedWindow() (Window, error) {
	if err := c.sendMessage(msgTypeGetTree, nil); err != nil {
		return Window{}, err
	}

	msgType, payload, err := c.readMessage()
	if err != nil {
		return Window{}, err
	}
	if msgType != msgTypeGetTree {
		return Window{}, fmt.Errorf("unexpected reply type %d to GET_TREE", msgType)
	}

	var root treeNode
	if err := json.Unmarshal(payload, &root); err != nil {
		return Window{}, fmt.Errorf("decode GET_TREE reply: %w", err)
	}

	w, _ := root.findFocused()
	return w, nil
}

// windowEvent is the payload of a "window" change event.
type windowEvent struct {
	Change    string `json:"change"`
	Container struct {
		Name             string `json:"name"`
		Focused          bool   `json:"focused"`
		AppID            string `json:"app_id"`
		WindowProperties *struct {
			Class string `json:"class"`
		} `json:"window_properties"`
	} `json:"container"`
}

// Subscribe sends SUBSCRIBE ["window"] and then runs a goroutine that
// updates ctx on every "focus" change until ctx's subscription ends
// (connection closed, "shutdown" event, or ctx.Done()).
//
// Connect/read errors leave the Context at its last known value -- per
// spec.md §7, "subscription restart is out of core scope".
func Subscribe(ctx context.Context, c *Client, wctx *Context) error {
	payload, err := json.Marshal([]string{"window"})
	if err != nil {
		return err
	}
	if err := c.sendMessage(msgTypeSubscribe, payload); err != nil {
		return fmt.Errorf("subscribe to window events: %w", err)
	}

	// Sway replies to SUBSCRIBE itself before any event arrives.
	if _, _, err := c.readMessage(); err != nil {
		return fmt.Errorf("read SUBSCRIBE ack: %w", err)
	}

	go subscribeLoop(ctx, c, wctx)
	return nil
}

func subscribeLoop(ctx context.Context, c *Client, wctx *Context) {
	defer c.Close()

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {
		msgType, payload, err := c.readMessage()
		if err != nil {
			logger.Debugf("sway IPC read ended: %v", err)
			return
		}

		if msgType&eventTypeMask == 0 {
			continue
		}

		var ev windowEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			logger.Warnf("malformed sway window event: %v", err)
			continue
		}

		switch ev.Change {
		case "focus":
			class := ev.Container.AppID
			if class == "" && ev.Container.WindowProperties != nil {
				class = ev.Container.WindowProperties.Class
			}
			wctx.Set(Window{Class: class, Title: ev.Container.Name})
		case "shutdown":
			return
		}
	}
}

// ParseUID parses a decimal uid string.
func ParseUID(s string) (int, error) {
	return strconv.Atoi(s)
}
