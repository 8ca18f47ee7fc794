package console

import (
	"bufio"
	"context"
	"errors"
	"io"
)

// Reader — консоль поверх произвольного потока (например, stdin).
type Reader struct {
	r io.Reader
}

// NewReader создаёт консоль из потока.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Serve читает байты, пока поток не закончится или не отменят ctx.
// Блокирующее чтение выполняется в отдельной горутине; после отмены она завершится
// на следующем байте или при закрытии потока.
func (c *Reader) Serve(ctx context.Context, fn ByteFunc) error {
	bytes := make(chan byte)
	errc := make(chan error, 1)
	go func() {
		br := bufio.NewReader(c.r)
		for {
			b, err := br.ReadByte()
			if err != nil {
				errc <- err
				return
			}
			select {
			case bytes <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-bytes:
			fn(b)
		case err := <-errc:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Close закрывает поток, если он это умеет.
func (c *Reader) Close() error {
	if cl, ok := c.r.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
