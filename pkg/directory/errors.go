/*
 * Copyright 2025 Carver Automation Corporation.
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

package directory

import "errors"

var (
	// ErrNoCredential is returned when a token source has no credential to offer.
	ErrNoCredential = errors.New("no directory credential available")
	// ErrUnexpectedStatus is returned for non-2xx directory responses.
	ErrUnexpectedStatus = errors.New("unexpected directory response status")
	// ErrBodyTooLarge is returned when a listing exceeds the configured size limit.
	ErrBodyTooLarge = errors.New("directory response exceeds size limit")
)
