// Package atfwd пересылает AT-команды удаленному обработчику через binder:
// Proxy кодирует Command и декодирует Response, Stub обслуживает ту же
// транзакцию на стороне сервиса.
package atfwd

import (
	"fmt"
	"strings"
)

const (
	// Descriptor сервиса пересылки AT-команд.
	Descriptor = "com.android.internal.atfwd.IAtCmdFwd"
	// ServiceName регистрируется в ServiceManager.
	ServiceName = "AtCmdFwd"
)

// Коды результата, которые возвращает Router.
const (
	ResultOK    int32 = 0
	ResultError int32 = 1
)

// Command описывает исходящий запрос к обработчику AT-команд.
type Command struct {
	Opcode int32    `json:"opcode"`
	Name   string   `json:"name"`
	Tokens []string `json:"tokens,omitempty"`
}

// Clone возвращает глубокую копию; срез токенов не разделяется с исходным.
func (c *Command) Clone() *Command {
	if c == nil {
		return nil
	}
	out := &Command{Opcode: c.Opcode, Name: strings.Clone(c.Name)}
	if len(c.Tokens) > 0 {
		out.Tokens = make([]string, len(c.Tokens))
		for i, tok := range c.Tokens {
			out.Tokens[i] = strings.Clone(tok)
		}
	}
	return out
}

// TokenCount возвращает число токенов.
func (c *Command) TokenCount() int {
	if c == nil {
		return 0
	}
	return len(c.Tokens)
}

func (c *Command) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("AT%s op=%d %q", c.Name, c.Opcode, c.Tokens)
}

// Response содержит результат выполнения команды.
type Response struct {
	Result  int32  `json:"result"`
	Message string `json:"message"`
}

func (r *Response) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("result=%d %q", r.Result, r.Message)
}
