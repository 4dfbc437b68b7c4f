package client

import (
	"bytes"
	"io"
)

// Lines streams r line by line, splitting on '\n' and keeping any '\r'.
// The channel closes once r is exhausted or fails; r is closed with it.
func Lines(f io.ReadCloser) <-chan string {
	strChan := make(chan string)

	// Create a bucket and accumulator
	data := make([]byte, 256)
	var linebuf bytes.Buffer

	go func() {
		defer close(strChan)
		defer f.Close()

		for {
			n, err := f.Read(data)

			if n > 0 {
				chunk := data[:n]

				for {
					i := bytes.IndexByte(chunk, '\n')
					if i == -1 {
						linebuf.Write(chunk)
						break
					}
					linebuf.Write(chunk[:i])
					strChan <- linebuf.String()
					linebuf.Reset()

					chunk = chunk[i+1:]
				}
			}

			if err == io.EOF {
				if linebuf.Len() > 0 {
					strChan <- linebuf.String()
				}
				break
			}

			if err != nil {
				break
			}
		}
	}()

	return strChan
}
