package cli

import (
	"sync"

	"github.com/pterm/pterm"

	"github.com/straychat/straychat/internal/chat"
)

// renderer prints the chat view with pterm. Calls can arrive from the event
// loop and transport goroutines at once, so printing is serialized.
type renderer struct {
	mu     sync.Mutex
	online int
}

func newRenderer() *renderer {
	return &renderer{}
}

func (r *renderer) Status(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pterm.Info.Println(text)
}

func (r *renderer) Append(line chat.Line) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch line.Sender {
	case chat.Self:
		pterm.FgCyan.Println("you: " + line.Text)
	case chat.Partner:
		pterm.FgLightMagenta.Println("stranger: " + line.Text)
	default:
		pterm.FgGray.Println("* " + line.Text)
	}
}

func (r *renderer) Typing(active bool) {
	if !active {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pterm.FgGray.Println("stranger is typing...")
}

func (r *renderer) Online(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if count == r.online {
		return
	}
	r.online = count
	pterm.FgGray.Printfln("%d strangers online", count)
}

func (r *renderer) ConfirmExit(visible bool) {
	if !visible {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pterm.Warning.Println("Really? End this chat with /yes, or keep talking with /no.")
}

func (r *renderer) InputEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if enabled {
		pterm.FgGray.Println("You can chat now. Say hi!")
	}
}

func (r *renderer) Notice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pterm.Warning.Println(text)
}
