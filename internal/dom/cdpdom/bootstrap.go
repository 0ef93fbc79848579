package cdpdom

// bindingName is the function the bootstrap script calls to report raw
// document activity back to the agent.
const bindingName = "__wobReport"

// bootstrapJS runs in every new document of the attached target. It
// forwards raw interaction events through the reporting binding as JSON;
// classification, debouncing and filtering all happen on the Go side.
//
// Listeners use the capture phase so interactions are observed even when
// inner handlers stop propagation. Scrollable descendants are discovered
// by computed overflow, rescanned every 2s and on DOM mutation, because
// scroll events on elements do not bubble to the document.
const bootstrapJS = `(() => {
  if (window.__wobBootstrapped) return;
  window.__wobBootstrapped = true;

  const report = (msg) => {
    try { window.` + bindingName + `(JSON.stringify(msg)); } catch (e) {}
  };

  const describe = (el) => {
    if (!el || !el.tagName) return {};
    return {
      tagName: el.tagName,
      id: el.id || '',
      className: (typeof el.className === 'string' ? el.className : ''),
      text: (el.textContent || '').slice(0, 100),
      type: el.type || '',
      name: el.name || '',
      value: (typeof el.value === 'string' ? el.value.slice(0, 100) : ''),
      placeholder: el.placeholder || '',
      action: el.action || '',
      method: el.method || ''
    };
  };

  const on = (type, handler) => document.addEventListener(type, handler, true);

  on('click', (e) => report({
    evt: 'click', target: describe(e.target), x: e.clientX, y: e.clientY
  }));
  on('keydown', (e) => report({
    evt: 'keydown', target: describe(e.target), key: e.key, code: e.code,
    ctrl: e.ctrlKey, shift: e.shiftKey, alt: e.altKey, meta: e.metaKey
  }));
  on('focus', (e) => report({ evt: 'focus', target: describe(e.target) }));
  on('blur', (e) => report({ evt: 'blur', target: describe(e.target) }));
  on('submit', (e) => report({ evt: 'submit', target: describe(e.target) }));
  on('touchstart', (e) => {
    const t = e.touches[0] || {};
    report({
      evt: 'touchstart', target: describe(e.target),
      x: t.clientX || 0, y: t.clientY || 0, touchCount: e.touches.length
    });
  });
  on('touchmove', (e) => {
    const t = e.touches[0] || {};
    report({
      evt: 'touchmove', target: describe(e.target),
      x: t.clientX || 0, y: t.clientY || 0, touchCount: e.touches.length
    });
  });
  on('wheel', (e) => report({
    evt: 'wheel', target: describe(e.target),
    deltaX: e.deltaX, deltaY: e.deltaY, deltaMode: e.deltaMode
  }));
  document.addEventListener('scroll', (e) => {
    if (e.target === document || e.target === document.documentElement || e.target === document.body) {
      report({
        evt: 'scroll', target: { tagName: 'DOCUMENT' },
        scrollTop: window.scrollY || document.documentElement.scrollTop || 0
      });
    }
  }, true);

  // Scroll events on overflowed elements do not reach the document, so
  // scrollable descendants get their own listeners.
  const hooked = new WeakSet();
  const hookScrollable = (el) => {
    if (hooked.has(el)) return;
    const style = getComputedStyle(el);
    const oy = style.overflowY, ox = style.overflowX;
    const scrollable = (oy === 'auto' || oy === 'scroll' || ox === 'auto' || ox === 'scroll');
    if (!scrollable) return;
    hooked.add(el);
    el.addEventListener('scroll', () => report({
      evt: 'scroll', target: describe(el),
      scrollTop: el.scrollTop, fromDescendant: true
    }), { passive: true });
  };
  const scan = () => {
    document.querySelectorAll('div, main, section, aside, ul, ol').forEach(hookScrollable);
  };
  scan();
  setInterval(scan, 2000);

  const observer = new MutationObserver((mutations) => {
    let added = 0;
    let target = null;
    for (const m of mutations) {
      if (m.addedNodes.length > 0) {
        added += m.addedNodes.length;
        target = target || m.target;
        m.addedNodes.forEach((n) => {
          if (n.nodeType === 1) {
            hookScrollable(n);
            if (n.querySelectorAll) n.querySelectorAll('div, main, section, aside, ul, ol').forEach(hookScrollable);
          }
        });
      }
    }
    report({
      evt: 'mutation', addedNodes: added,
      mutationTarget: target && target.tagName ? (target.id ? target.tagName + '#' + target.id : target.tagName) : 'DOCUMENT'
    });
  });
  observer.observe(document.documentElement, { childList: true, subtree: true });
})();`
