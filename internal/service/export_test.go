package service

import "time"

func SetEnqueueTimeout(d *Dispatcher, timeout time.Duration) { d.enqueue = timeout }
