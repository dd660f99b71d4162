package buffer

// Unbounded creates a channel buffer that grows as needed.
// It returns a write-only channel to feed data in, and a read-only channel to read data out.
// Items come out in the order they went in. Closing the input flushes the queue and then
// closes the output.
//
// initialCap: The starting size of the backing slice.
// hardLimit: The maximum number of items to buffer before dropping the oldest.
// onDrop: Optional callback invoked (on the pump goroutine) for every dropped item.
//
// Usage:
//
//	in, out := buffer.Unbounded[event.Event](64, 50000, nil)
//	in <- ev
//	ev := <-out
func Unbounded[T any](initialCap int, hardLimit int, onDrop func(T)) (chan<- T, <-chan T) {
	in := make(chan T, 16)
	out := make(chan T, 16)

	go func() {
		defer close(out)

		queue := make([]T, 0, initialCap)

		for {
			var next T
			var downstream chan T

			// Enable the 'out' case only if we have data to send.
			if len(queue) > 0 {
				next = queue[0]
				downstream = out
			}

			select {
			case val, ok := <-in:
				if !ok {
					for _, item := range queue {
						out <- item
					}
					return
				}

				// Safety valve for a consumer that stopped reading.
				if hardLimit > 0 && len(queue) >= hardLimit {
					if onDrop != nil {
						onDrop(queue[0])
					}
					queue = queue[1:]
				}

				queue = append(queue, val)

			case downstream <- next:
				var zero T
				queue[0] = zero
				queue = queue[1:]
			}
		}
	}()

	return in, out
}
