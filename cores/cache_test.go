/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cores

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugGuard(t *testing.T) {
	g := newSlugGuard()

	var sets int
	set := func() { sets++ }

	docs := g.token("docs")
	assert.True(t, g.setIfValid("docs", docs, set))

	g.bump("docs")
	assert.False(t, g.setIfValid("docs", docs, set))
	assert.True(t, g.setIfValid("docs", g.token("docs"), set))

	blog := g.token("blog")
	g.bumpAll()
	assert.False(t, g.setIfValid("blog", blog, set))
	assert.True(t, g.setIfValid("blog", g.token("blog"), set))

	assert.Equal(t, 3, sets)
}

func TestSlugGuardStaysBounded(t *testing.T) {
	g := newSlugGuard()

	for i := 0; i < 3*guardStripes; i++ {
		g.bump(fmt.Sprintf("slug-%d", i))
	}

	var total uint64
	for _, gen := range g.gens {
		total += gen
	}
	require.EqualValues(t, 3*guardStripes, total)
	assert.Len(t, g.gens, guardStripes)

	for _, slug := range []string{"", "docs", "a-very-long-slug-with-many-parts"} {
		i := guardStripe(slug)
		assert.True(t, i >= 0 && i < guardStripes, slug)
		assert.Equal(t, i, guardStripe(slug))
	}
}
