package atfwd

import (
	"fmt"

	"hwshim/internal/binder"
	"hwshim/internal/parcel"
)

// TransactionProcessCommand задает код транзакции processAtCmd.
const TransactionProcessCommand = binder.FirstCallTransaction

func encodeRequest(cmd *Command) ([]byte, error) {
	w := parcel.NewWriter()
	if err := w.WriteInterfaceToken(Descriptor); err != nil {
		return nil, err
	}
	w.WriteBool(true)
	w.WriteInt32(cmd.Opcode)
	if err := w.WriteString16(cmd.Name); err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	w.WriteInt32(int32(len(cmd.Tokens)))
	for i, tok := range cmd.Tokens {
		if err := w.WriteString16(tok); err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
	}
	return w.Bytes(), nil
}

// decodeCommand читает тело запроса после заголовка; nil без ошибки
// означает has_command == false.
func decodeCommand(r *parcel.Reader) (*Command, error) {
	present, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	var cmd Command
	if cmd.Opcode, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	if cmd.Name, _, err = r.ReadString16(); err != nil {
		return nil, err
	}
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	// Каждый токен занимает минимум 4 байта: защита от огромной длины.
	if n < 0 || int(n) > r.Remaining()/4 {
		return nil, fmt.Errorf("token count %d: %w", n, parcel.ErrBadLength)
	}
	if n > 0 {
		cmd.Tokens = make([]string, n)
		for i := range cmd.Tokens {
			if cmd.Tokens[i], _, err = r.ReadString16(); err != nil {
				return nil, fmt.Errorf("token %d: %w", i, err)
			}
		}
	}
	return &cmd, nil
}

func writeException(w *parcel.Writer, code int32, msg string) error {
	w.WriteInt32(code)
	return w.WriteString16(msg)
}

func writeResult(w *parcel.Writer, resp *Response) error {
	w.WriteInt32(binder.ExNone)
	if resp == nil {
		w.WriteBool(false)
		return nil
	}
	w.WriteBool(true)
	w.WriteInt32(resp.Result)
	return w.WriteString16(resp.Message)
}

// decodeReply разбирает ответ: исключение проверяется до признака результата.
func decodeReply(data []byte) (*Response, error) {
	r := parcel.NewReader(data)
	code, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("exception code: %v: %w", err, ErrMalformedReply)
	}
	if code != binder.ExNone {
		msg, _, err := r.ReadString16()
		if err != nil {
			return nil, fmt.Errorf("exception message: %v: %w", err, ErrMalformedReply)
		}
		return nil, &RemoteException{Code: code, Message: msg}
	}
	hasResult, err := r.ReadBool()
	if err != nil {
		return nil, fmt.Errorf("result flag: %v: %w", err, ErrMalformedReply)
	}
	if !hasResult {
		return nil, ErrNoResult
	}
	result, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("result: %v: %w", err, ErrMalformedReply)
	}
	msg, _, err := r.ReadString16()
	if err != nil {
		return nil, fmt.Errorf("message: %v: %w", err, ErrMalformedReply)
	}
	return &Response{Result: result, Message: msg}, nil
}
