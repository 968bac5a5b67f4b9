// SPDX-License-Identifier: AGPL-3.0-or-later
// OCP - Orchestrator Control Protocol
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package sdk holds build-time version metadata, overridden via -ldflags.
package sdk

var (
	// GitCommit is set at build time via -ldflags "-X .../sdk.GitCommit=...".
	GitCommit = "none" //nolint:gochecknoglobals

	// Version of the program, set at build time via -ldflags.
	Version = "dev" //nolint:gochecknoglobals
)
