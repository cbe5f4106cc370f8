package rod

// In-page helpers. Each is evaluated with `this` bound to the scope: the
// window for a page, or the element or shadow root being queried.

// deepQueryJS returns every element matching a CSS selector under the
// scope, descending into open shadow roots.
const deepQueryJS = `function (sel) {
	const out = [];
	const seen = new Set();
	const visit = (root) => {
		root.querySelectorAll(sel).forEach((el) => {
			if (!seen.has(el)) {
				seen.add(el);
				out.push(el);
			}
		});
		if (root.shadowRoot) visit(root.shadowRoot);
		root.querySelectorAll('*').forEach((el) => {
			if (el.shadowRoot) visit(el.shadowRoot);
		});
	};
	visit(this && this.querySelectorAll ? this : document);
	return out;
}`

// xpathJS evaluates a path expression relative to the scope and keeps
// element results only.
const xpathJS = `function (expr) {
	const ctx = this && this.nodeType ? this : document;
	const r = document.evaluate(expr, ctx, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	const out = [];
	for (let i = 0; i < r.snapshotLength; i++) {
		const n = r.snapshotItem(i);
		if (n.nodeType === Node.ELEMENT_NODE) out.push(n);
	}
	return out;
}`

const shadowRootJS = `function () { return this.shadowRoot; }`

const describeJS = `function () {
	const one = (el) => {
		let s = el.tagName.toLowerCase();
		if (el.id) return s + '#' + el.id;
		if (el.classList && el.classList.length) s += '.' + el.classList[0];
		return s;
	};
	if (this.nodeType === Node.DOCUMENT_FRAGMENT_NODE && this.host) {
		return '#shadow-root(' + one(this.host) + ')';
	}
	return one(this);
}`

const connectedJS = `function () { return this.isConnected; }`

// fillJS sets the value of inputs whose type has no text caret (date,
// time, color, range...) and fires the events frameworks listen to.
const fillJS = `function (value) {
	this.focus();
	this.value = value;
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
}`

const inputTypeJS = `function () {
	if (this.isContentEditable) return 'contenteditable';
	return (this.tagName === 'INPUT' ? (this.type || 'text') : this.tagName).toLowerCase();
}`

// selectJS selects options of a <select> by value or visible label.
const selectJS = `function (values) {
	if (this.tagName !== 'SELECT') throw new Error('element is not a <select>');
	const want = new Set(values);
	let matched = 0;
	for (const opt of this.options) {
		const hit = want.has(opt.value) || want.has(opt.label) || want.has(opt.text.trim());
		opt.selected = hit;
		if (hit) matched++;
		if (hit && !this.multiple) break;
	}
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
	return matched;
}`

const valueJS = `function () { return this.value === undefined ? '' : String(this.value); }`

const checkedJS = `function () { return !!this.checked; }`

const enabledJS = `function () { return !this.disabled && !this.closest('fieldset[disabled]'); }`

const forceClickJS = `function () { this.click(); }`

const tagNameJS = `function () { return this.tagName || ''; }`

const draggableJS = `function () { return this.draggable === true; }`

// html5DragJS runs the HTML5 drag sequence from the scope onto target with
// one shared DataTransfer. CDP mouse input does not start native drags.
const html5DragJS = `function (target) {
	const dt = new DataTransfer();
	const fire = (el, type) => el.dispatchEvent(new DragEvent(type, { bubbles: true, cancelable: true, dataTransfer: dt }));
	fire(this, 'dragstart');
	fire(target, 'dragenter');
	fire(target, 'dragover');
	fire(target, 'drop');
	fire(this, 'dragend');
}`
