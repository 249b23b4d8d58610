/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errors

// Result carries a value that is always safe to use together with the error
// that produced it. A terminal error must be propagated to the caller; a
// recoverable error has already been replaced by a fallback Value and only
// needs to be logged.
type Result[T any] struct {
	Value    T
	Err      error
	Degraded bool
}

// OK wraps a successful value
func OK[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Recovered wraps a fallback value produced after a recoverable failure
func Recovered[T any](fallback T, err error) Result[T] {
	return Result[T]{Value: fallback, Err: err, Degraded: true}
}

// Failed wraps an error that has no usable fallback
func Failed[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Terminal reports whether the result must abort the request
func (r Result[T]) Terminal() bool {
	return r.Err != nil && !r.Degraded
}

// Unwrap returns the value and the terminal error, if any. Recoverable
// errors are dropped because the value already reflects the fallback.
func (r Result[T]) Unwrap() (T, error) {
	if r.Terminal() {
		return r.Value, r.Err
	}
	return r.Value, nil
}
