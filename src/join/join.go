// Package join implements the barrier the launcher waits on while its
// probes run. Tasks are identified by name; once every required task has
// reported, the finalize function runs exactly once.
//
// A Barrier is not safe for concurrent use. The launcher only touches it
// from inside its actor.
package join

// Task is one named unit of work the barrier is waiting on.
type Task struct {
	Name     string
	Required bool
	Done     bool
}

// Barrier counts completed tasks by name.
type Barrier struct {
	tasks     map[string]*Task
	order     []string
	remaining int
	fired     bool
	cancelled bool
	finalize  func()
}

// NewBarrier returns a barrier waiting on the named required tasks.
func NewBarrier(finalize func(), required ...string) *Barrier {
	b := &Barrier{
		tasks:    make(map[string]*Task),
		finalize: finalize,
	}
	for _, name := range required {
		b.Add(name, true)
	}
	return b
}

// Add registers a task. Adding a name twice only upgrades it to required.
// Tasks cannot be added once the barrier has fired.
func (b *Barrier) Add(name string, required bool) {
	if b.fired {
		return
	}
	if t, ok := b.tasks[name]; ok {
		if required && !t.Required {
			t.Required = true
			if !t.Done {
				b.remaining++
			}
		}
		return
	}
	b.tasks[name] = &Task{Name: name, Required: required}
	b.order = append(b.order, name)
	if required {
		b.remaining++
	}
}

// Done marks a task complete and runs finalize if it was the last required
// one. Repeated, unknown and late completions are ignored. It reports
// whether this call ran finalize.
func (b *Barrier) Done(name string) bool {
	t, ok := b.tasks[name]
	if !ok {
		t = &Task{Name: name}
		b.tasks[name] = t
		b.order = append(b.order, name)
	}
	if t.Done {
		return false
	}
	t.Done = true
	if t.Required {
		b.remaining--
	}
	if b.remaining > 0 || b.fired || b.cancelled {
		return false
	}
	b.fired = true
	if b.finalize != nil {
		b.finalize()
	}
	return true
}

// Cancel stops the barrier from ever running finalize.
func (b *Barrier) Cancel() {
	b.cancelled = true
}

// Fired reports whether finalize has run.
func (b *Barrier) Fired() bool {
	return b.fired
}

// Cancelled reports whether Cancel has been called.
func (b *Barrier) Cancelled() bool {
	return b.cancelled
}

// Pending returns the required tasks that have not reported, in the order
// they were added.
func (b *Barrier) Pending() []string {
	var names []string
	for _, name := range b.order {
		if t := b.tasks[name]; t.Required && !t.Done {
			names = append(names, name)
		}
	}
	return names
}

// Tasks returns a snapshot of every task in the order it was added.
func (b *Barrier) Tasks() []Task {
	tasks := make([]Task, 0, len(b.order))
	for _, name := range b.order {
		tasks = append(tasks, *b.tasks[name])
	}
	return tasks
}
